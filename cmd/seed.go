package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"guardian/core"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// seedRecord mirrors the producer contract so generated records exercise
// the same parser path real collectors do.
type seedRecord struct {
	ID        string                 `json:"id"`
	Timestamp string                 `json:"timestamp"`
	Category  string                 `json:"category"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message"`
	Source    string                 `json:"source"`
	Context   map[string]interface{} `json:"context"`
}

// NewSeedCmd builds the "seed" subcommand: drop realistic fake telemetry
// records into the spool for demos and load testing.
func NewSeedCmd() *cobra.Command {
	var spoolDir string
	var count int

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write fake telemetry records into the event spool",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("count must be at least 1, got %d", count)
			}
			if err := os.MkdirAll(spoolDir, 0o750); err != nil {
				return fmt.Errorf("failed to create spool directory: %w", err)
			}

			path := filepath.Join(spoolDir, fmt.Sprintf("seed-%s.jsonl", uuid.New().String()))
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create spool file: %w", err)
			}
			defer f.Close()

			enc := json.NewEncoder(f)
			for i := 0; i < count; i++ {
				if err := enc.Encode(fakeRecord()); err != nil {
					return fmt.Errorf("failed to write record: %w", err)
				}
			}

			fmt.Printf("Wrote %d records to %s\n", count, path)
			return nil
		},
	}

	cmd.Flags().StringVar(&spoolDir, "spool", "./data/spool", "event spool directory")
	cmd.Flags().IntVarP(&count, "count", "n", 50, "number of records to generate")
	return cmd
}

func fakeRecord() seedRecord {
	category := gofakeit.RandomString([]string{
		string(core.CategoryProcess),
		string(core.CategoryFilesystem),
		string(core.CategoryNetwork),
		string(core.CategoryNetwork), // network weighted up so the graph fills
		string(core.CategoryAuthentication),
		string(core.CategorySystem),
	})
	severity := gofakeit.RandomString([]string{
		"low", "low", "low", "medium", "medium", "high", "critical",
	})

	rec := seedRecord{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Category:  category,
		Severity:  severity,
		Source:    "seed",
		Context:   make(map[string]interface{}),
	}

	switch core.Category(category) {
	case core.CategoryProcess:
		name := gofakeit.AppName()
		rec.Message = fmt.Sprintf("Process launched: %s", name)
		rec.Context["process_name"] = name
		rec.Context["pid"] = gofakeit.Number(100, 99999)
	case core.CategoryFilesystem:
		path := "/Users/" + gofakeit.Username() + "/" + gofakeit.Word()
		rec.Message = fmt.Sprintf("File modified: %s", path)
		rec.Context["path"] = path
	case core.CategoryNetwork:
		name := gofakeit.AppName()
		addr := gofakeit.IPv4Address()
		port := gofakeit.Number(1, 65535)
		rec.Message = fmt.Sprintf("Connection from %s to %s:%d", name, addr, port)
		rec.Context["process_name"] = name
		rec.Context["pid"] = gofakeit.Number(100, 99999)
		rec.Context["remote_address"] = addr
		rec.Context["remote_port"] = port
		rec.Context["direction"] = gofakeit.RandomString([]string{"outbound", "outbound", "inbound"})
	case core.CategoryAuthentication:
		user := gofakeit.Username()
		rec.Message = fmt.Sprintf("Login attempt by %s", user)
		rec.Context["user"] = user
		rec.Context["success"] = gofakeit.Bool()
	default:
		rec.Message = gofakeit.HackerPhrase()
	}

	return rec
}
