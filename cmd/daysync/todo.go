package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mschirtzinger/daysync/internal/schema"
	"github.com/mschirtzinger/daysync/internal/service"
	"github.com/mschirtzinger/daysync/internal/ui"
)

var todoCmd = &cobra.Command{
	Use:     "todo",
	GroupID: "data",
	Short:   "Create, list and edit daily todos",
}

var todoAddCmd = &cobra.Command{
	Use:   "add [content...]",
	Short: "Add a todo for today",
	Long: `Add a todo dated today. Content comes from the arguments, or from stdin
when no arguments are given ("-" also reads stdin).

Examples:
  daysync todo add "water the plants"
  daysync todo add --title "Errands" buy milk, post office
  pbpaste | daysync todo add`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		title, _ := cmd.Flags().GetString("title")
		content := readContent(args)
		if strings.TrimSpace(content) == "" {
			fatalf("content is required")
		}

		r, err := mustService(ctx).AddTodo(ctx, title, content)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Added %s (%s)\n", ui.RenderPass("✓"), ui.RenderAccent(ui.ShortID(r.ID)), r.Date)
	},
}

var todoEditCmd = &cobra.Command{
	Use:   "edit <id> [content...]",
	Short: "Replace the content of today's todo",
	Long: `Replace the content of a todo. Only todos from today can be edited unless
--force is given. Without content arguments, an editor form is shown when
stdin is a terminal, otherwise content is read from stdin.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		force, _ := cmd.Flags().GetBool("force")
		svc := mustService(ctx)

		r, err := svc.GetTodo(ctx, args[0])
		if err != nil {
			fatalf("%v", err)
		}
		if !force && !schema.Editable(r, time.Now()) {
			fatalf("todo %s is from %s; only today's todos can be edited (use --force)", ui.ShortID(r.ID), r.Date)
		}

		var content string
		if len(args) > 1 || !term.IsTerminal(int(os.Stdin.Fd())) {
			content = readContent(args[1:])
		} else {
			content = r.Content
			err := huh.NewText().
				Title(r.Title).
				CharLimit(schema.MaxContentLength).
				Value(&content).
				Run()
			if err != nil {
				fatalf("edit cancelled: %v", err)
			}
		}

		r, err = svc.EditTodo(ctx, r.ID, content, force)
		if err != nil {
			if errors.Is(err, service.ErrNotEditable) {
				fatalf("%v (use --force)", err)
			}
			fatalf("%v", err)
		}
		fmt.Printf("%s Updated %s\n", ui.RenderPass("✓"), ui.RenderAccent(ui.ShortID(r.ID)))
	},
}

var todoListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recent todos, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")
		todos, err := mustService(ctx).Recent(ctx, limit)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Println(ui.TodoTable(todos))
	},
}

var todoShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one todo in full",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		r, err := mustService(ctx).GetTodo(ctx, args[0])
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Print(ui.TodoDetail(r))
	},
}

var todoOnCmd = &cobra.Command{
	Use:   "on <phrase...>",
	Short: "List todos of a day given in plain words",
	Long: `List the todos of one day. The day can be an ISO date or a phrase.

Examples:
  daysync todo on yesterday
  daysync todo on last friday
  daysync todo on 2024-03-01`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		todos, day, err := mustService(ctx).TodosOn(ctx, strings.Join(args, " "))
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s %s\n\n", ui.RenderAccent("📅"), schema.FormatDate(day))
		fmt.Println(ui.TodoTable(todos))
	},
}

var todoRmCmd = &cobra.Command{
	Use:   "rm <id>...",
	Short: "Delete todos",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		svc := mustService(ctx)
		for _, id := range args {
			if err := svc.DeleteTodo(ctx, id); err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), id)
		}
	},
}

var todoClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every todo (settings are kept)",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				fatalf("refusing to clear without --yes")
			}
			confirmed := false
			err := huh.NewConfirm().
				Title("Delete every todo?").
				Description("Export a backup first if you may need them again.").
				Value(&confirmed).
				Run()
			if err != nil || !confirmed {
				fmt.Println("Cancelled")
				return
			}
		}

		n, err := mustService(ctx).ClearTodos(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Deleted %d todos\n", ui.RenderPass("✓"), n)
	},
}

func init() {
	todoAddCmd.Flags().StringP("title", "t", "", "Title (default: Daily task - <date>)")
	todoEditCmd.Flags().BoolP("force", "f", false, "Allow editing todos from earlier days")
	todoListCmd.Flags().IntP("limit", "n", 20, "Maximum number of todos (0 = all)")
	todoClearCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	todoCmd.AddCommand(todoAddCmd, todoEditCmd, todoListCmd, todoShowCmd, todoOnCmd, todoRmCmd, todoClearCmd)
	rootCmd.AddCommand(todoCmd)
}

// readContent joins args, or reads stdin when args are empty or "-".
func readContent(args []string) string {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " ")
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		fatalf("failed to read stdin: %v", err)
	}
	return strings.TrimRight(string(data), "\n")
}
