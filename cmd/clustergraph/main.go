package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rmax-ai/clustergraph/pkg/client"
	"github.com/rmax-ai/clustergraph/pkg/graph"
	"github.com/rmax-ai/clustergraph/pkg/mcp"
)

var (
	Version   = "v1.0.0"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const usage = `Usage: clustergraph [-api URL] [-json] <command>

Commands:
  status           show daemon health
  graph            print the resource tree and constraint edges
  passes [limit]   list recent reconciliation passes
  refresh          reconcile now and print the diff
  report <type>    print a CSV report: passes | summary
  mcp              serve the Model Context Protocol on stdio
  version          print version information
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("clustergraph", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	apiURL := fs.String("api", envOrDefault("CLUSTERGRAPH_API", "http://127.0.0.1:8090"), "base URL of clustergraph-d")
	jsonOut := fs.Bool("json", false, "print raw JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	c := client.NewClient(*apiURL)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "status":
		st, err := c.Ping(ctx)
		if err != nil {
			return daemonError(err)
		}
		if *jsonOut {
			return writeJSON(out, st)
		}
		printStatus(out, st)
	case "graph":
		g, err := c.GetGraph(ctx)
		if err != nil {
			return daemonError(err)
		}
		if *jsonOut {
			return writeJSON(out, g)
		}
		printGraph(out, g)
	case "passes":
		limit := 0
		if len(rest) > 0 {
			if _, err := fmt.Sscan(rest[0], &limit); err != nil || limit <= 0 {
				return fmt.Errorf("invalid limit %q", rest[0])
			}
		}
		passes, err := c.GetPasses(ctx, limit)
		if err != nil {
			return daemonError(err)
		}
		if *jsonOut {
			return writeJSON(out, passes)
		}
		printPasses(out, passes)
	case "refresh":
		res, err := c.Refresh(ctx)
		if err != nil {
			return daemonError(err)
		}
		if *jsonOut {
			return writeJSON(out, res)
		}
		printRefresh(out, res)
	case "report":
		if len(rest) == 0 {
			return errors.New("report needs a type: passes | summary")
		}
		if err := c.Report(ctx, rest[0], out); err != nil {
			return daemonError(err)
		}
	case "mcp":
		return mcp.NewServer(c.Endpoint()).Serve()
	case "version":
		fmt.Fprintf(out, "clustergraph %s (commit %s, built %s)\n", Version, Commit, BuildTime)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func daemonError(err error) error {
	if errors.Is(err, client.ErrBusy) {
		return err
	}
	return fmt.Errorf("%w\nIs clustergraph-d running?", err)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStatus(out io.Writer, st client.Status) {
	role := "follower"
	if st.Leader {
		role = "leader"
	}
	fmt.Fprintf(out, "Cluster: %s (%s, %s)\n", st.ClusterID, st.Status, role)
	if st.LastPassAt != nil {
		fmt.Fprintf(out, "Last pass: %s at %s\n", st.LastPassID, st.LastPassAt.Format(time.RFC3339))
	}
	if st.LastError != "" {
		fmt.Fprintf(out, "Last error: %s\n", st.LastError)
	}
}

func printGraph(out io.Writer, g *graph.Graph) {
	fmt.Fprintf(out, "Cluster %s (version %d)\n", g.ClusterID, g.Version)
	g.Walk(func(n *graph.Node, depth int) {
		line := fmt.Sprintf("%s%s [%s]", strings.Repeat("  ", depth+1), n.ID, n.Type)
		if agent := n.Properties["agent"]; agent != "" {
			line += " " + agent
		}
		if dev := n.Properties["storage_dependency"]; dev != "" {
			line += " (on " + dev + ")"
		}
		fmt.Fprintln(out, line)
	})
	if phs := g.Placeholders(); len(phs) > 0 {
		fmt.Fprintln(out, "Placeholders:")
		for _, ph := range phs {
			fmt.Fprintf(out, "  %s\n", ph.ID)
		}
	}
	if len(g.Edges) > 0 {
		fmt.Fprintln(out, "Edges:")
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, e := range g.Edges {
			fmt.Fprintf(tw, "  %s\t%s\t%s -> %s\n", e.Type, e.ConstraintID, e.FromID, e.ToID)
		}
		tw.Flush()
	}
}

func printPasses(out io.Writer, passes []client.Pass) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tPASS\tCREATED\tREMOVED\tPLACEHOLDERS\tUNRESOLVED\tERROR")
	for _, p := range passes {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			p.StartedAt.Local().Format("2006-01-02 15:04:05"), p.PassID,
			p.Created, p.Removed, p.PlaceholdersCreated, p.Unresolved, p.Error)
	}
	tw.Flush()
}

func printRefresh(out io.Writer, res *client.RefreshResult) {
	fmt.Fprintf(out, "Pass %s\n", res.PassID)
	list := func(label string, ids []string) {
		if len(ids) > 0 {
			fmt.Fprintf(out, "  %s: %s\n", label, strings.Join(ids, ", "))
		}
	}
	list("created", res.Created)
	list("updated", res.Updated)
	list("removed", res.Removed)
	list("placeholders", res.PlaceholdersCreated)
	list("unknown agents", res.UnknownAgents)
	if res.Unresolved > 0 {
		fmt.Fprintf(out, "  unresolved: %d\n", res.Unresolved)
	}
	for _, fs := range slices.Sorted(maps.Keys(res.StorageDependencies)) {
		fmt.Fprintf(out, "  storage: %s on %s\n", fs, res.StorageDependencies[fs])
	}
}
