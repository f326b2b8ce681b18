package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tokligence/streamledger/internal/config"
)

// InitOptions configures the bootstrap process for generating config files.
type InitOptions struct {
	Root           string
	Environment    string
	HTTPAddress    string
	DatabaseURL    string // empty keeps the default SQLite file
	SQLitePath     string
	Model          string
	ResponseFormat string
	LogFile        string
	Force          bool
}

// Files lists the paths Init writes, relative to Root.
func Files(env string) []string {
	if strings.TrimSpace(env) == "" {
		env = "dev"
	}
	return []string{
		filepath.Join("config", "setting.yaml"),
		filepath.Join("config", env, "streamledger.yaml"),
	}
}

// Init scaffolds configuration files readable by config.Load. Secrets are
// never written; they are expected in the environment or a .env file.
func Init(opts InitOptions) error {
	applyDefaults(&opts)
	if err := Validate(opts); err != nil {
		return err
	}
	if err := ensureDir(filepath.Join(opts.Root, "config", opts.Environment)); err != nil {
		return err
	}
	files := Files(opts.Environment)

	setting, err := render("streamledger settings", settingTemplate(opts))
	if err != nil {
		return err
	}
	if err := writeFile(filepath.Join(opts.Root, files[0]), setting, opts.Force); err != nil {
		return err
	}

	envFile, err := render("overrides for "+opts.Environment, environmentTemplate(opts))
	if err != nil {
		return err
	}
	return writeFile(filepath.Join(opts.Root, files[1]), envFile, opts.Force)
}

func applyDefaults(opts *InitOptions) {
	if strings.TrimSpace(opts.Root) == "" {
		opts.Root = "."
	}
	if strings.TrimSpace(opts.Environment) == "" {
		opts.Environment = "dev"
	}
	if strings.TrimSpace(opts.HTTPAddress) == "" {
		opts.HTTPAddress = ":8000"
	}
	if strings.TrimSpace(opts.DatabaseURL) == "" && strings.TrimSpace(opts.SQLitePath) == "" {
		opts.SQLitePath = config.DefaultSQLitePath()
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = "gpt-3.5-turbo"
	}
	if strings.TrimSpace(opts.ResponseFormat) == "" {
		opts.ResponseFormat = "text"
	}
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func writeFile(path, contents string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(contents), 0o644)
}

func render(title string, doc map[string]any) (string, error) {
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", title, err)
	}
	return "# " + title + "\n" + string(out), nil
}

func settingTemplate(opts InitOptions) map[string]any {
	return map[string]any{
		"environment":  opts.Environment,
		"app_name":     "streamledger",
		"http_address": opts.HTTPAddress,
	}
}

// environmentTemplate nests keys by their underscore prefix; config.Load
// flattens them back with "_".
func environmentTemplate(opts InitOptions) map[string]any {
	database := map[string]any{}
	if opts.DatabaseURL != "" {
		database["url"] = opts.DatabaseURL
	}
	doc := map[string]any{
		"llm": map[string]any{
			"model":       opts.Model,
			"temperature": 0.7,
			"max_tokens":  1000,
		},
		"response_format": opts.ResponseFormat,
		"rate_limit": map[string]any{
			"enabled":        true,
			"requests":       60,
			"window_seconds": 60,
		},
		"log": map[string]any{
			"level": "info",
			"json":  true,
		},
	}
	if len(database) > 0 {
		doc["database"] = database
	}
	if opts.SQLitePath != "" {
		doc["sqlite_path"] = opts.SQLitePath
	}
	if opts.LogFile != "" {
		doc["log"].(map[string]any)["file"] = opts.LogFile
	}
	return doc
}

// Validate ensures the options are usable without modifying files.
func Validate(opts InitOptions) error {
	applyDefaults(&opts)
	if strings.ContainsAny(opts.Environment, `/\`) || opts.Environment == ".." {
		return fmt.Errorf("invalid environment %q", opts.Environment)
	}
	switch opts.ResponseFormat {
	case "text", "openai":
	default:
		return fmt.Errorf("invalid response format %q", opts.ResponseFormat)
	}
	if opts.DatabaseURL != "" && !strings.Contains(opts.DatabaseURL, "://") {
		return errors.New("database url must include a scheme")
	}
	return nil
}
