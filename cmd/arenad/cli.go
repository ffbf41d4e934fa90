package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/ernie/swarm-arena/internal/auth"
	"github.com/ernie/swarm-arena/internal/config"
	"github.com/ernie/swarm-arena/internal/leaderboard"
	"github.com/ernie/swarm-arena/internal/storage"
)

const minPasswordLength = 8

// openStore loads config from path and opens the database it names
func openStore(path string) (*storage.Store, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

func cmdLeaderboard(args []string) error {
	fs := flag.NewFlagSet("leaderboard", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	limit := fs.Int("top", 20, "number of top players to show")
	fs.Parse(args)

	store, err := openStore(*configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.LoadLeaderboard(context.Background())
	if err != nil {
		return err
	}

	// Rank the persisted rows the same way the live board does.
	board := leaderboard.New()
	board.Load(entries)
	top := board.Top(*limit)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tPLAYER\tRATING\tWINS\tLOSSES")
	fmt.Fprintln(w, "----\t------\t------\t----\t------")
	for i, e := range top {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\n", i+1, e.Identity, e.Rating, e.Wins, e.Losses)
	}
	return w.Flush()
}

func cmdMatches(args []string) error {
	fs := flag.NewFlagSet("matches", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	limit := fs.Int("recent", 20, "number of recent matches to show")
	fs.Parse(args)

	store, err := openStore(*configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	matches, err := store.RecentMatches(context.Background(), *limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPLAYERS\tWINNER\tSCORE\tENDED")
	fmt.Fprintln(w, "--\t-------\t------\t-----\t-----")
	for _, m := range matches {
		fmt.Fprintf(w, "%s\t%s vs %s\t%s\t%d-%d\t%s\n",
			m.MatchID, m.Player1, m.Player2, m.Winner, m.Score[0], m.Score[1],
			m.EndedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

// cmdUser handles user subcommands
func cmdUser(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("user subcommand required: add, remove, list, reset")
	}
	subCmd := args[0]

	fs := flag.NewFlagSet("user "+subCmd, flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	isAdmin := fs.Bool("admin", false, "create as admin user")
	fs.Parse(args[1:])

	store, err := openStore(*configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	switch subCmd {
	case "add":
		return cmdUserAdd(ctx, store, fs.Args(), *isAdmin)
	case "remove":
		return cmdUserRemove(ctx, store, fs.Args())
	case "list":
		return cmdUserList(ctx, store)
	case "reset":
		return cmdUserReset(ctx, store, fs.Args())
	default:
		return fmt.Errorf("unknown user command: %s (use: add, remove, list, reset)", subCmd)
	}
}

func cmdUserAdd(ctx context.Context, store *storage.Store, args []string, isAdmin bool) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: arenad user add [--admin] <username>")
	}
	username := args[0]

	if _, err := store.GetUserByUsername(ctx, username); err == nil {
		return fmt.Errorf("user '%s' already exists", username)
	}

	hash, err := promptPassword("Enter password: ")
	if err != nil {
		return err
	}

	if err := store.CreateUser(ctx, username, hash, isAdmin); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	roleStr := "user"
	if isAdmin {
		roleStr = "admin"
	}
	fmt.Printf("User '%s' created successfully (role: %s)\n", username, roleStr)
	return nil
}

func cmdUserRemove(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: arenad user remove <username>")
	}
	username := args[0]

	if err := store.DeleteUser(ctx, username); err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}

	fmt.Printf("User '%s' removed\n", username)
	return nil
}

func cmdUserList(ctx context.Context, store *storage.Store) error {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tROLE\tPWD_CHANGE\tLAST_LOGIN")
	fmt.Fprintln(w, "--------\t----\t----------\t----------")
	for _, user := range users {
		role := "user"
		if user.IsAdmin {
			role = "admin"
		}
		pwdChange := "no"
		if user.PasswordChangeRequired {
			pwdChange = "yes"
		}
		lastLogin := "never"
		if user.LastLogin != nil {
			lastLogin = user.LastLogin.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", user.Username, role, pwdChange, lastLogin)
	}
	return w.Flush()
}

func cmdUserReset(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: arenad user reset <username>")
	}
	username := args[0]

	user, err := store.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("user not found: %s", username)
	}

	hash, err := promptPassword("Enter new password: ")
	if err != nil {
		return err
	}

	if err := store.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}

	fmt.Printf("Password reset for '%s'\n", username)
	return nil
}

// promptPassword reads and confirms a password from the terminal and returns
// its bcrypt hash.
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(password) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}

	hash, err := auth.HashPassword(string(password))
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}
