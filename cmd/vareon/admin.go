package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/muhammad-robitulloh/vareon/internal/adapter/postgres"
	"github.com/muhammad-robitulloh/vareon/internal/config"
	"github.com/muhammad-robitulloh/vareon/internal/domain/owner"
	"github.com/muhammad-robitulloh/vareon/internal/middleware"
	"github.com/muhammad-robitulloh/vareon/internal/secrets"
)

// runAdmin dispatches admin subcommands (create-owner, set-default-model,
// set-credential, list-models).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "create-owner":
		return runAdminCreateOwner(args[1:])
	case "set-default-model":
		return runAdminSetDefaultModel(args[1:])
	case "set-credential":
		return runAdminSetCredential(args[1:])
	case "list-models":
		return runAdminListModels(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: vareon admin <command> [options]

Commands:
  create-owner       Create an owner and print a fresh API key
  set-default-model  Change an owner's preferred default model
  set-credential     Store an encrypted provider credential
  list-models        List the model catalog
  help               Show this help message

Examples:
  vareon admin create-owner --name alice --default-model gpt-large
  vareon admin set-default-model --owner <id> --model gpt-large
  vareon admin set-credential --provider openai
  vareon admin list-models
`)
}

func loadAdminDeps() (*config.Config, *postgres.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	return cfg, postgres.NewStore(pool), pool.Close, nil
}

// generateAPIKey returns a fresh key of the form vrn_<40 hex chars>.
// The first KeyPrefixLen characters are stored in clear for lookup; the
// full key is stored only as a bcrypt hash.
func generateAPIKey() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return "vrn_" + hex.EncodeToString(raw), nil
}

func runAdminCreateOwner(args []string) error {
	fs := flag.NewFlagSet("create-owner", flag.ContinueOnError)
	name := fs.String("name", "", "owner name (required)")
	defaultModel := fs.String("default-model", "", "preferred default model (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	key, err := generateAPIKey()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}

	_, store, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	o := &owner.Owner{
		Name:         *name,
		KeyPrefix:    key[:middleware.KeyPrefixLen],
		APIKeyHash:   string(hash),
		DefaultModel: *defaultModel,
	}
	if err := store.CreateOwner(context.Background(), o); err != nil {
		return fmt.Errorf("create owner: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Owner created: %s (id=%s)\n", o.Name, o.ID)
	fmt.Fprintln(os.Stderr, "API key (shown once, store it now):")
	fmt.Println(key)
	return nil
}

func runAdminSetDefaultModel(args []string) error {
	fs := flag.NewFlagSet("set-default-model", flag.ContinueOnError)
	ownerID := fs.String("owner", "", "owner id (required)")
	modelName := fs.String("model", "", "model name from the catalog; empty clears the preference")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ownerID == "" {
		return fmt.Errorf("--owner is required")
	}

	_, store, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	if *modelName != "" {
		if _, err := store.GetModelByName(ctx, *modelName); err != nil {
			return fmt.Errorf("look up model %q: %w", *modelName, err)
		}
	}
	if err := store.UpdateOwnerDefaultModel(ctx, *ownerID, *modelName); err != nil {
		return fmt.Errorf("set default model: %w", err)
	}

	if *modelName == "" {
		fmt.Fprintf(os.Stderr, "Default model cleared for owner %s\n", *ownerID)
	} else {
		fmt.Fprintf(os.Stderr, "Default model for owner %s set to %s\n", *ownerID, *modelName)
	}
	return nil
}

func runAdminSetCredential(args []string) error {
	fs := flag.NewFlagSet("set-credential", flag.ContinueOnError)
	provider := fs.String("provider", "", "provider name, e.g. openai or anthropic (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *provider == "" {
		return fmt.Errorf("--provider is required")
	}

	credential, err := promptSecret("Credential: ")
	if err != nil {
		return fmt.Errorf("read credential: %w", err)
	}
	if credential == "" {
		return fmt.Errorf("credential must not be empty")
	}

	cfg, store, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	creds := secrets.NewCredentialStore(store, cfg.Secrets.EncryptionKey)
	if err := creds.Save(context.Background(), *provider, credential); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Credential stored for provider %s\n", *provider)
	return nil
}

func runAdminListModels(args []string) error {
	fs := flag.NewFlagSet("list-models", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, store, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	models, err := store.ListModels(context.Background())
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	if len(models) == 0 {
		fmt.Println("No models found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tPROVIDER\tROLES\tACTIVE")
	for i := range models {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%t\n",
			models[i].ID, models[i].Name, models[i].Provider, models[i].Roles, models[i].Active)
	}
	return w.Flush()
}

// promptSecret reads a value from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
