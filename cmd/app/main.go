package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/cloudshelf/internal"
	"github.com/starford/cloudshelf/internal/appid"
	"github.com/starford/cloudshelf/internal/models"
	"github.com/starford/cloudshelf/internal/service"
	"github.com/starford/cloudshelf/internal/sse"
	"github.com/starford/cloudshelf/internal/steam"
	pkgconfig "github.com/starford/cloudshelf/pkg/config"
)

var version = "dev"

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	stateStyles = map[models.State]lipgloss.Style{
		models.Linked:        lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		models.PendingAdd:    lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		models.PendingRemove: lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Debug("config file not found, using defaults", slog.String("path", configPath))
	}
	return cfg, nil
}

func options(cmd *cli.Command, extra ...internal.Option) ([]internal.Option, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return append([]internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, extra...), nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

// withApp opens the application with logs on stderr so stdout stays
// reserved for command output.
func withApp(ctx context.Context, cmd *cli.Command, fn func(*internal.App) error, extra ...internal.Option) error {
	opts, err := options(cmd, append(extra, internal.WithLogOutput(os.Stderr))...)
	if err != nil {
		return err
	}
	app, err := internal.Open(ctx, opts...)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
}

func stateLabel(s models.State) string {
	if st, ok := stateStyles[s]; ok {
		return st.Render(s.String())
	}
	return s.String()
}

func refreshCmd(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(app *internal.App) error {
		n, err := app.Service.Refresh(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.Root().Writer, "catalog refreshed: %d items\n", n)
		return nil
	})
}

func listCmd(ctx context.Context, cmd *cli.Command) error {
	var states []models.State
	for _, name := range cmd.StringSlice("state") {
		for _, part := range strings.Split(name, ",") {
			st, err := models.ParseState(strings.TrimSpace(part))
			if err != nil {
				return err
			}
			states = append(states, st)
		}
	}

	return withApp(ctx, cmd, func(app *internal.App) error {
		items := app.Service.Items(ctx, states...)
		out := cmd.Root().Writer
		if cmd.Bool("json") {
			return printJSON(out, items)
		}
		if len(items) == 0 {
			fmt.Fprintln(out, "no items; run refresh first")
			return nil
		}
		rows := make([][]string, 0, len(items))
		for _, it := range items {
			rows = append(rows, []string{it.StoreKey, it.Title, stateLabel(it.State), it.AppID})
		}
		printTable(out, []string{"STORE KEY", "TITLE", "STATE", "APP ID"}, rows)
		return nil
	})
}

func toggleCmd(ctx context.Context, cmd *cli.Command) error {
	keys := cmd.Args().Slice()
	if len(keys) == 0 {
		return errors.New("toggle: at least one store key is required")
	}
	return withApp(ctx, cmd, func(app *internal.App) error {
		for _, key := range keys {
			st, err := app.Service.Toggle(ctx, key)
			if err != nil {
				return fmt.Errorf("toggle %s: %w", key, err)
			}
			fmt.Fprintf(cmd.Root().Writer, "%s: %s\n", key, stateLabel(st))
		}
		return nil
	})
}

// progressPrinter reports apply progress on stderr.
type progressPrinter struct {
	w io.Writer
}

func (p progressPrinter) Publish(ev sse.Event) {
	pe, ok := ev.Data.(service.ProgressEvent)
	if !ok || pe.Op == "" {
		return
	}
	line := fmt.Sprintf("[%d/%d] %s %s", pe.Done, pe.Total, pe.Op, pe.Key)
	if pe.Error != "" {
		line += ": " + pe.Error
	}
	fmt.Fprintln(p.w, line)
}

func (progressPrinter) PublishItemState(string, string) {}

func (progressPrinter) PublishChanged() {}

func applyCmd(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(app *internal.App) error {
		sum, err := app.Service.Apply(ctx)
		if err != nil {
			return err
		}
		out := cmd.Root().Writer
		if cmd.Bool("json") {
			return printJSON(out, sum)
		}
		fmt.Fprintf(out, "created %d, updated %d, removed %d, failed %d, warnings %d\n",
			sum.Created, sum.Updated, sum.Removed, sum.Failed, sum.Warned)
		if sum.Failed > 0 {
			return fmt.Errorf("apply: %d of %d operations failed", sum.Failed, sum.Total)
		}
		return nil
	}, internal.WithPublisher(progressPrinter{w: os.Stderr}))
}

func historyCmd(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(app *internal.App) error {
		runs, err := app.Service.History(ctx, int(cmd.Int("limit")))
		if err != nil {
			return err
		}
		out := cmd.Root().Writer
		if cmd.Bool("json") {
			return printJSON(out, runs)
		}
		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			rows = append(rows, []string{
				r.FinishedAt.Local().Format("2006-01-02 15:04:05"),
				r.BatchID,
				strconv.Itoa(r.Created),
				strconv.Itoa(r.Updated),
				strconv.Itoa(r.Removed),
				strconv.Itoa(r.Failed),
			})
		}
		printTable(out, []string{"FINISHED", "BATCH", "CREATED", "UPDATED", "REMOVED", "FAILED"}, rows)
		return nil
	})
}

// usersCmd does not open the index, so it works before any user is chosen.
func usersCmd(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	root, err := internal.SteamRoot(cfg)
	if err != nil {
		return err
	}
	users, err := steam.Users(root)
	if err != nil {
		return err
	}
	out := cmd.Root().Writer
	if cmd.Bool("json") {
		return printJSON(out, users)
	}
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		recent := ""
		if u.MostRecent {
			recent = "*"
		}
		rows = append(rows, []string{strconv.FormatUint(uint64(u.AccountID), 10), u.AccountName, u.PersonaName, recent})
	}
	printTable(out, []string{"ACCOUNT ID", "ACCOUNT", "PERSONA", "RECENT"}, rows)
	return nil
}

func mcpCmd(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func idCmd(_ context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) != 2 {
		return errors.New("id: usage: id NAME EXE")
	}
	id := appid.Generate(args[0], args[1])
	fmt.Fprintf(cmd.Root().Writer, "%s %d\n", id, id.Int32())
	return nil
}

func main() {
	jsonFlag := &cli.BoolFlag{Name: "json", Usage: "Print JSON instead of a table"}

	cmd := &cli.Command{
		Name:    "cloudshelf",
		Usage:   "Keep Steam non-launcher shortcuts in sync with the Xbox Cloud Gaming catalog",
		Version: version,
		Action:  run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{Name: "serve", Usage: "Run the HTTP API and SSE stream", Action: run},
			{Name: "refresh", Usage: "Fetch the catalog and classify every title", Action: refreshCmd},
			{
				Name:   "list",
				Usage:  "List catalog items",
				Action: listCmd,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "state", Aliases: []string{"s"}, Usage: "Filter by state (linked, unlinked, pending_add, pending_remove)"},
					jsonFlag,
				},
			},
			{Name: "toggle", Usage: "Mark items for add or remove", ArgsUsage: "STORE_KEY...", Action: toggleCmd},
			{Name: "apply", Usage: "Write pending changes to the shortcut file", Action: applyCmd, Flags: []cli.Flag{jsonFlag}},
			{
				Name:   "history",
				Usage:  "Show recent apply runs",
				Action: historyCmd,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 10, Usage: "Number of runs"},
					jsonFlag,
				},
			},
			{Name: "users", Usage: "List launcher users on this machine", Action: usersCmd, Flags: []cli.Flag{jsonFlag}},
			{Name: "mcp", Usage: "Serve MCP tools over stdio", Action: mcpCmd},
			{Name: "id", Usage: "Print the shortcut id for a name and executable", ArgsUsage: "NAME EXE", Action: idCmd},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
