// Command conflict_sweep runs a validation sweep over published and locked
// schedule periods through a running API instance and prints a report.
// Intended for cron: it exits non-zero when any blocking conflict is found.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type period struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type conflict struct {
	ID           string `json:"id"`
	ConflictType string `json:"conflict_type"`
	IsBlocking   bool   `json:"is_blocking"`
	Description  string `json:"description"`
}

type validationReport struct {
	PeriodID      string     `json:"period_id"`
	TicketCount   int        `json:"ticket_count"`
	BlockingCount int        `json:"blocking_count"`
	WarningCount  int        `json:"warning_count"`
	Conflicts     []conflict `json:"conflicts"`
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

type sweeper struct {
	client *http.Client
	base   string
	token  string
}

func main() {
	var (
		base     string
		prefix   string
		token    string
		statuses string
		timeout  time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&prefix, "prefix", "/api/v1", "API route prefix")
	flag.StringVar(&token, "token", os.Getenv("SWEEP_TOKEN"), "Bearer token with schedule management rights")
	flag.StringVar(&statuses, "statuses", "PUBLISHED,LOCKED", "Comma-separated period statuses to sweep")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "HTTP client timeout")
	flag.Parse()

	if token == "" {
		log.Fatal("no token: pass -token or set SWEEP_TOKEN")
	}

	s := &sweeper{
		client: &http.Client{Timeout: timeout},
		base:   strings.TrimRight(base, "/") + prefix,
		token:  token,
	}

	periods, err := s.listPeriods(strings.Split(statuses, ","))
	if err != nil {
		log.Fatalf("list periods: %v", err)
	}

	var blocking, warnings int
	fmt.Println("Conflict Sweep Report")
	fmt.Println("=====================")
	for _, p := range periods {
		report, err := s.validate(p.ID)
		if err != nil {
			fmt.Printf("[ERROR] %s (%s): %v\n", p.Name, p.ID, err)
			blocking++
			continue
		}
		status := "OK"
		if report.BlockingCount > 0 {
			status = "BLOCKING"
		} else if report.WarningCount > 0 {
			status = "WARN"
		}
		fmt.Printf("[%s] %s (%s): %d tickets, %d blocking, %d warnings\n",
			status, p.Name, p.ID, report.TicketCount, report.BlockingCount, report.WarningCount)
		for _, c := range report.Conflicts {
			fmt.Printf("  - %s blocking=%t %s\n", c.ConflictType, c.IsBlocking, c.Description)
		}
		blocking += report.BlockingCount
		warnings += report.WarningCount
	}

	fmt.Printf("Blocking conflicts: %d, Warnings: %d\n", blocking, warnings)
	if blocking > 0 {
		os.Exit(1)
	}
}

func (s *sweeper) listPeriods(statuses []string) ([]period, error) {
	query := url.Values{}
	for _, status := range statuses {
		if trimmed := strings.TrimSpace(status); trimmed != "" {
			query.Add("status", trimmed)
		}
	}
	var periods []period
	if err := s.get("/schedule/periods?"+query.Encode(), &periods); err != nil {
		return nil, err
	}
	return periods, nil
}

func (s *sweeper) validate(periodID string) (*validationReport, error) {
	var report validationReport
	if err := s.get("/schedule/periods/"+periodID+"/validate", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *sweeper) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, s.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return err
	}
	return json.Unmarshal(env.Data, out)
}
