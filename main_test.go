package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dealsCSV = `ID,TITLE,DATE_CREATE,OPPORTUNITY,STAGE_SEMANTIC_ID,ASSIGNED_BY_ID,CATEGORY_ID,LAST_ACTIVITY_TIME,STAGE_ID
1,Chairs,2024-01-10,1000,S,7,0,,WON
2,Desks,2024-01-20,2000,F,7,0,,LOSE
3,Lamps,2024-02-05,500,P,8,1,2020-01-01T10:00:00,NEW
`

const usersCSV = `id,name
7,Anna Petrova
8,Boris Ivanov
`

// runCLI executes the root command with args, resetting flag state left over
// from earlier runs in the same process.
func runCLI(t *testing.T, args ...string) error {
	_, err := runCLIOut(t, args...)
	return err
}

// runCLIOut is runCLI that also returns what the command wrote to its output.
func runCLIOut(t *testing.T, args ...string) (string, error) {
	t.Helper()
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	reset(rootCmd.PersistentFlags())
	for _, c := range []*cobra.Command{reportCmd, stalledCmd, syncCmd, monthCmd, roiCmd} {
		reset(c.Flags())
	}

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func csvEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	deals := filepath.Join(dir, "deals.csv")
	users := filepath.Join(dir, "users.csv")
	require.NoError(t, os.WriteFile(deals, []byte(dealsCSV), 0644))
	require.NoError(t, os.WriteFile(users, []byte(usersCSV), 0644))

	t.Setenv("DEAL_SOURCE", "csv")
	t.Setenv("CSV_INPUT_PATH", deals)
	t.Setenv("CSV_USERS_PATH", users)
	t.Setenv("CSV_OUTPUT_PATH", "")
	t.Setenv("STALLED_CSV_PATH", "")
	t.Setenv("POSTGRES_MIRROR", "false")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("PERIOD_MODE", "")
	t.Setenv("TIMEZONE", "")
	return dir
}

func TestReportJSON(t *testing.T) {
	dir := csvEnv(t)
	out := filepath.Join(dir, "report.json")

	require.NoError(t, runCLI(t, "report", "--format", "json", "-o", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var r map[string]any
	require.NoError(t, json.Unmarshal(data, &r))

	assert.Equal(t, 3.0, r["total_deals"])
	assert.InDelta(t, 33.33, r["company_conversion"].(float64), 0.01)

	ranking := r["manager_ranking"].([]any)
	require.Len(t, ranking, 2)
	assert.Equal(t, "Anna Petrova", ranking[0].(map[string]any)["manager"])

	stalled := r["stalled_deals"].([]any)
	require.Len(t, stalled, 1)
	assert.Equal(t, "3", stalled[0].(map[string]any)["id"])

	stages := r["stage_distribution"].([]any)
	require.Len(t, stages, 3)
	assert.Equal(t, "WON", stages[0].(map[string]any)["stage"])

	assert.Equal(t, "Anna Petrova", r["best_manager"].(map[string]any)["best_manager"])
	assert.Len(t, r["financial_scenarios"].([]any), 3)
}

func TestReportToCommandOutput(t *testing.T) {
	csvEnv(t)

	out, err := runCLIOut(t, "report", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "SALES FUNNEL ANALYTICS")
	assert.Contains(t, out, "Pipeline Stages")

	out, err = runCLIOut(t, "report", "--format", "json")
	require.NoError(t, err)
	var r map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, 3.0, r["total_deals"])
}

func TestReportHeaderOnlyUsersFile(t *testing.T) {
	dir := csvEnv(t)
	users := filepath.Join(dir, "users.csv")
	require.NoError(t, os.WriteFile(users, []byte("id,name\n"), 0644))

	out, err := runCLIOut(t, "report", "--format", "json")
	require.NoError(t, err)
	var r map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &r))

	ranking := r["manager_ranking"].([]any)
	require.Len(t, ranking, 2, "managers fall back to their raw ids")
	assert.Equal(t, "7", ranking[0].(map[string]any)["manager"])
}

func TestReportText(t *testing.T) {
	dir := csvEnv(t)
	out := filepath.Join(dir, "report.txt")

	require.NoError(t, runCLI(t, "report", "--no-color", "-o", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SALES FUNNEL ANALYTICS")
	assert.Contains(t, string(data), "Boris Ivanov")
}

func TestStalledCSV(t *testing.T) {
	dir := csvEnv(t)
	out := filepath.Join(dir, "stalled.csv")

	require.NoError(t, runCLI(t, "stalled", "--csv", out, "--stuck-days", "30"))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "3,Lamps,Boris Ivanov,500.00,"))
}

func TestSyncToCSV(t *testing.T) {
	dir := csvEnv(t)
	mirror := filepath.Join(dir, "mirror", "deals.csv")
	t.Setenv("CSV_OUTPUT_PATH", mirror)

	require.NoError(t, runCLI(t, "sync"))

	data, err := os.ReadFile(mirror)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 4, "header plus three deals")
	assert.True(t, strings.HasPrefix(lines[0], "ID,TITLE,DATE_CREATE"))
}

func TestSyncNeedsATarget(t *testing.T) {
	csvEnv(t)
	err := runCLI(t, "sync")
	assert.ErrorContains(t, err, "nothing to write")
}

func TestInvalidConfig(t *testing.T) {
	csvEnv(t)
	t.Setenv("DEAL_SOURCE", "excel")

	err := runCLI(t, "report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Source")
}

func TestInvalidPeriodFlag(t *testing.T) {
	csvEnv(t)

	err := runCLI(t, "report", "--period", "decade")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PeriodMode")
}

func TestInvalidTimezone(t *testing.T) {
	csvEnv(t)
	t.Setenv("TIMEZONE", "Mars/Olympus")

	err := runCLI(t, "report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Timezone")
}

func TestStalledToCommandOutput(t *testing.T) {
	csvEnv(t)

	out, err := runCLIOut(t, "stalled", "--no-color", "--stuck-days", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "Lamps")
	assert.Contains(t, out, "Total stalled: 1")
}

func TestMonthToOutputFile(t *testing.T) {
	dir := csvEnv(t)
	path := filepath.Join(dir, "month.txt")

	out, err := runCLIOut(t, "month", "2024-02", "-o", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "02.2024: 1 deals, 0 won, conversion 0.00%, revenue 0.00, avg check 500.00\n", string(data))
}

func TestMonth(t *testing.T) {
	csvEnv(t)

	out, err := runCLIOut(t, "month", "2024-01")
	require.NoError(t, err)
	assert.Equal(t, "01.2024: 2 deals, 1 won, conversion 50.00%, revenue 1000.00, avg check 1500.00\n", out)

	out, err = runCLIOut(t, "month", "2023-12")
	require.NoError(t, err)
	assert.Equal(t, "12.2023: no deals\n", out)

	assert.Error(t, runCLI(t, "month", "January"))
}

func TestROI(t *testing.T) {
	csvEnv(t)

	out, err := runCLIOut(t, "roi", "--cost", "500")
	require.NoError(t, err)
	assert.Equal(t, "Revenue 1000.00 on cost 500.00: ROI 200.00%\n", out)

	assert.ErrorContains(t, runCLI(t, "roi"), "--cost must be positive")
}
