// ABOUTME: Admin CLI for bosar-gateway staff, bot and knowledge management
// ABOUTME: Operates directly on the gateway database configured in gateway.yaml

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/bosar/bosar-gateway/internal/auth"
	"github.com/bosar/bosar-gateway/internal/config"
	"github.com/bosar/bosar-gateway/internal/knowledge"
	"github.com/bosar/bosar-gateway/internal/openai"
	"github.com/bosar/bosar-gateway/internal/store"
)

const banner = `
 _                                          _           _
| |__   ___  ___  __ _ _ __       __ _  __| |_ __ ___ (_)_ __
| '_ \ / _ \/ __|/ _' | '__|____ / _' |/ _' | '_ ' _ \| | '_ \
| |_) | (_) \__ \ (_| | | |_____| (_| | (_| | | | | | | | | | |
|_.__/ \___/|___/\__,_|_|        \__,_|\__,_|_| |_| |_|_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "staff":
		err = cmdStaff(args)
	case "bot":
		err = cmdBot(args)
	case "knowledge":
		err = cmdKnowledge(args)
	case "conversations":
		err = cmdConversations(args)
	case "seed":
		err = cmdSeed()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: bosar-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  staff list                   List staff accounts")
	fmt.Println("  staff add --email E --name N Add a staff account (prompts for password)")
	fmt.Println("  bot list                     List bot configs")
	fmt.Println("  bot import <file.toml>       Import a bot config with FAQs and tools")
	fmt.Println("  bot add-doc <bot-id> <file>  Attach a markdown document to a bot")
	fmt.Println("  knowledge rebuild <bot-id>   Reindex a bot's knowledge base")
	fmt.Println("  conversations list           List recent conversations")
	fmt.Println("  seed                         Create starter staff accounts and bot config")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  BOSAR_CONFIG    Path to gateway.yaml (default: ~/.config/bosar/gateway.yaml)")
	fmt.Println("  BOSAR_DB_PATH   Override the database path from the config")
	fmt.Println()
}

// getConfigPath mirrors the gateway binary's config resolution.
func getConfigPath() string {
	if envPath := os.Getenv("BOSAR_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "bosar", "gateway.yaml")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("BOSAR_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return s, nil
}

func cmdStaff(args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}

	switch args[0] {
	case "list":
		return staffList()
	case "add":
		return staffAdd(args[1:])
	default:
		return fmt.Errorf("unknown staff subcommand: %s", args[0])
	}
}

func staffList() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	accounts, err := s.ListStaffAccounts(context.Background())
	if err != nil {
		return fmt.Errorf("listing staff: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLE\tSTATUS")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Email, a.Name, a.Role, a.Status)
	}
	return w.Flush()
}

func staffAdd(args []string) error {
	var email, name, role string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--email" && i+1 < len(args):
			email = args[i+1]
			i++
		case args[i] == "--name" && i+1 < len(args):
			name = args[i+1]
			i++
		case args[i] == "--role" && i+1 < len(args):
			role = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--email="):
			email = strings.TrimPrefix(args[i], "--email=")
		case strings.HasPrefix(args[i], "--name="):
			name = strings.TrimPrefix(args[i], "--name=")
		case strings.HasPrefix(args[i], "--role="):
			role = strings.TrimPrefix(args[i], "--role=")
		default:
			return fmt.Errorf("unexpected argument: %s", args[i])
		}
	}

	if email == "" || name == "" {
		return fmt.Errorf("--email and --name are required")
	}
	if role == "" {
		role = store.StaffRoleAgent
	}
	if role != store.StaffRoleAgent && role != store.StaffRoleAdmin {
		return fmt.Errorf("role must be %q or %q", store.StaffRoleAgent, store.StaffRoleAdmin)
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := auth.HashPassword(string(password))
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	acct := &store.StaffAccount{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         role,
		Status:       store.StaffStatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.CreateStaffAccount(context.Background(), acct); err != nil {
		return fmt.Errorf("creating staff account: %w", err)
	}

	color.Green("  ✓ Created staff account: %s (%s)", email, acct.ID)
	return nil
}

// botFile is the TOML import format for bot configs.
type botFile struct {
	Name               string  `toml:"name"`
	Model              string  `toml:"model"`
	Temperature        float64 `toml:"temperature"`
	SystemInstructions string  `toml:"system_instructions"`

	FAQ []struct {
		Question string `toml:"question"`
		Answer   string `toml:"answer"`
	} `toml:"faq"`

	Tool []struct {
		Name        string         `toml:"name"`
		Description string         `toml:"description"`
		Parameters  map[string]any `toml:"parameters"`
	} `toml:"tool"`
}

func cmdBot(args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}

	switch args[0] {
	case "list":
		return botList()
	case "import":
		if len(args) < 2 {
			return fmt.Errorf("usage: bosar-admin bot import <file.toml>")
		}
		return botImport(args[1])
	case "add-doc":
		if len(args) < 3 {
			return fmt.Errorf("usage: bosar-admin bot add-doc <bot-id> <file.md>")
		}
		return botAddDoc(args[1], args[2])
	default:
		return fmt.Errorf("unknown bot subcommand: %s", args[0])
	}
}

func botList() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	configs, err := s.ListBotConfigs(ctx)
	if err != nil {
		return fmt.Errorf("listing bot configs: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMODEL\tENTRIES\tCREATED")
	for _, c := range configs {
		entries, err := s.CountKnowledgeEntries(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("counting knowledge entries: %w", err)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			c.ID, c.Name, c.Model, entries, c.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func botImport(path string) error {
	var bf botFile
	if _, err := toml.DecodeFile(path, &bf); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if bf.Name == "" {
		return fmt.Errorf("bot name is required")
	}
	if bf.Model == "" {
		bf.Model = "gpt-4o-mini"
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	tools := make([]store.Tool, 0, len(bf.Tool))
	for _, t := range bf.Tool {
		tools = append(tools, store.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}

	bot := &store.BotConfig{
		ID:                 uuid.New().String(),
		Name:               bf.Name,
		Model:              bf.Model,
		Temperature:        bf.Temperature,
		SystemInstructions: bf.SystemInstructions,
		Tools:              tools,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.CreateBotConfig(ctx, bot); err != nil {
		return fmt.Errorf("creating bot config: %w", err)
	}

	for _, f := range bf.FAQ {
		faq := &store.FAQ{
			ID:          uuid.New().String(),
			BotConfigID: bot.ID,
			Question:    f.Question,
			Answer:      f.Answer,
			CreatedAt:   now,
		}
		if err := s.CreateFAQ(ctx, faq); err != nil {
			return fmt.Errorf("creating faq: %w", err)
		}
	}

	color.Green("  ✓ Imported bot %q: %s", bot.Name, bot.ID)
	fmt.Printf("    faqs: %d, tools: %d\n", len(bf.FAQ), len(tools))
	fmt.Println("\nNext: bosar-admin knowledge rebuild", bot.ID)
	return nil
}

func botAddDoc(botID, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	if _, err := s.GetBotConfig(ctx, botID); err != nil {
		return fmt.Errorf("loading bot config: %w", err)
	}

	chunks := knowledge.ChunkMarkdown(string(content), 0)
	doc := &store.Document{
		ID:          uuid.New().String(),
		BotConfigID: botID,
		FileName:    filepath.Base(path),
		Content:     string(content),
		Chunks:      chunks,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.CreateDocument(ctx, doc); err != nil {
		return fmt.Errorf("creating document: %w", err)
	}

	color.Green("  ✓ Attached %s (%d chunks)", doc.FileName, len(chunks))
	fmt.Println("\nNext: bosar-admin knowledge rebuild", botID)
	return nil
}

func cmdKnowledge(args []string) error {
	if len(args) < 2 || args[0] != "rebuild" {
		return fmt.Errorf("usage: bosar-admin knowledge rebuild <bot-id>")
	}
	botID := args[1]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	embedder := openai.NewClient(cfg.OpenAI, logger)
	engine := knowledge.NewEngine(s, embedder, logger)

	fmt.Println("Rebuilding knowledge index...")
	stats, err := engine.Rebuild(context.Background(), botID)
	if err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}

	color.Green("  ✓ Indexed %d entries (%d faqs, %d document chunks)",
		stats.Total, stats.FAQs, stats.Chunks)
	return nil
}

// cmdSeed creates an admin account, an agent account, and a default bot
// config on a fresh database.
func cmdSeed() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()

	existing, err := s.ListStaffAccounts(ctx)
	if err != nil {
		return fmt.Errorf("checking staff accounts: %w", err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("seed already complete: %d staff account(s) exist", len(existing))
	}

	fmt.Print("Password for seeded accounts: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	hash, err := auth.HashPassword(string(password))
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	now := time.Now().UTC()
	accounts := []*store.StaffAccount{
		{
			ID: uuid.New().String(), Email: "admin@example.com", Name: "Admin",
			PasswordHash: hash, Role: store.StaffRoleAdmin,
			Status: store.StaffStatusActive, CreatedAt: now,
		},
		{
			ID: uuid.New().String(), Email: "agent@example.com", Name: "Agent",
			PasswordHash: hash, Role: store.StaffRoleAgent,
			Status: store.StaffStatusActive, CreatedAt: now,
		},
	}
	for _, acct := range accounts {
		if err := s.CreateStaffAccount(ctx, acct); err != nil {
			return fmt.Errorf("creating %s: %w", acct.Email, err)
		}
		color.Green("  ✓ Created %s account: %s", acct.Role, acct.Email)
	}

	bot := &store.BotConfig{
		ID:          uuid.New().String(),
		Name:        "Support Bot",
		Model:       "gpt-4o-mini",
		Temperature: 0.4,
		SystemInstructions: "You are a friendly customer support assistant. " +
			"Answer from the provided context when possible and keep replies short.",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateBotConfig(ctx, bot); err != nil {
		return fmt.Errorf("creating bot config: %w", err)
	}
	color.Green("  ✓ Created bot config: %s (%s)", bot.Name, bot.ID)

	fmt.Println("\nReady to go:")
	fmt.Println("  bosar-gateway serve")
	return nil
}

func cmdConversations(args []string) error {
	if len(args) > 0 && args[0] != "list" {
		return fmt.Errorf("unknown conversations subcommand: %s", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	convs, err := s.ListConversations(context.Background(), 50)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCUSTOMER\tSTATUS\tMSGS\tLAST ACTIVITY")
	for _, c := range convs {
		last := "-"
		if c.LastMessageAt != nil {
			last = c.LastMessageAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			c.ID, c.CustomerID, c.Status, c.MessageCount, last)
	}
	return w.Flush()
}
