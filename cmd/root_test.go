package cmd_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/HallyG/knot/cmd"
	"github.com/HallyG/knot/internal/util/testutil"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const (
	checkingID   = "BxBXxLj1m4HMXBm9WZZmCWVbPjX16EHwv99vp"
	creditCardID = "3gE5gnRzNyfXpBK5wEEKcymJ5albGVUqg77gr"
	loanID       = "Pp1Vpkl9w8sajvK6oEEKtr7vZxBnGpf7LxxLE"
	accessToken  = "access-sandbox-de3ce8ef-33f8-452c-a685-8671031fc0f6"
)

type harness struct {
	configPath    string
	dataFile      string
	accountsCalls atomic.Int32
}

// newHarness starts a fake Plaid API and writes a config file pointing at it. Once the accounts
// route has been called refreshBalance, if set, replaces the checking account's balance.
func newHarness(t *testing.T, refreshBalance string) *harness {
	t.Helper()

	h := &harness{}
	accounts := string(testutil.LoadTestDataFile(t, "accounts.json"))

	server := testutil.NewHTTPTestServer(t, []testutil.HTTPTestRoute{
		{
			Method:  http.MethodPost,
			URL:     "/item/public_token/exchange",
			Handler: testutil.ServeJSONTestDataHandler(t, http.StatusOK, "exchange.json"),
		},
		{
			Method: http.MethodPost,
			URL:    "/accounts/get",
			Handler: func(w http.ResponseWriter, r *http.Request) {
				body := accounts
				if h.accountsCalls.Add(1) > 1 && refreshBalance != "" {
					body = strings.Replace(body, `"current": 110.25`, `"current": `+refreshBalance, 1)
				}

				testutil.ServeJSON(http.StatusOK, body)(w, r)
			},
		},
		{
			Method: http.MethodPost,
			URL:    "/transactions/get",
			Handler: func(w http.ResponseWriter, r *http.Request) {
				var request struct {
					Options struct {
						Offset int `json:"offset"`
					} `json:"options"`
				}
				_ = json.NewDecoder(r.Body).Decode(&request)

				page := "transactions-page-1.json"
				if request.Options.Offset > 0 {
					page = "transactions-page-2.json"
				}

				testutil.ServeJSONTestDataHandler(t, http.StatusOK, page)(w, r)
			},
		},
	})

	dir := t.TempDir()
	h.dataFile = filepath.Join(dir, "data", "snapshot.json")
	h.configPath = filepath.Join(dir, "config.yaml")

	contents := fmt.Sprintf("plaid_client_id: client\nplaid_secret: secret\nplaid_base_url: %s\ndata_file: %s\ntimeout: 5s\n", server.URL, h.dataFile)
	require.NoError(t, os.WriteFile(h.configPath, []byte(contents), 0o600))

	return h
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	stdout := bytes.NewBuffer(nil)
	stderr := bytes.NewBuffer(nil)

	args = append([]string{"knot", "--config", h.configPath}, args...)
	err := cmd.Main(t.Context(), args, stdout, stderr)

	return stdout.String(), err
}

func (h *harness) link(t *testing.T) string {
	t.Helper()

	output, err := h.run(t, "link", "--public-token", "public-sandbox-1", "--institution-name", "Chase", "--institution-colour", "#117ACA")
	require.NoError(t, err)

	return output
}

func (h *harness) accountsJSON(t *testing.T) []map[string]any {
	t.Helper()

	output, err := h.run(t, "accounts", "--output", "json")
	require.NoError(t, err)

	var accounts []map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &accounts))

	return accounts
}

func TestLink(t *testing.T) {
	t.Parallel()

	t.Run("tracks depository and credit accounts", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, "")

		output := h.link(t)
		require.Contains(t, output, "Added 2 account(s) from Chase")
		require.Contains(t, output, checkingID)
		require.Contains(t, output, creditCardID)
		require.NotContains(t, output, loanID)

		snapshot, err := os.ReadFile(h.dataFile)
		require.NoError(t, err)
		require.Contains(t, string(snapshot), accessToken)
	})

	t.Run("linking the same item twice adds nothing", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, "")
		h.link(t)

		_, err := h.run(t, "link", "--public-token", "public-sandbox-1", "--institution-name", "Chase")
		require.EqualError(t, err, "link: Chase returned no new depository or credit accounts")
		require.Len(t, h.accountsJSON(t), 2)
	})

	t.Run("rejects invalid institution colour", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, "")

		_, err := h.run(t, "link", "--public-token", "public-sandbox-1", "--institution-name", "Chase", "--institution-colour", "blue")
		require.EqualError(t, err, "invalid institution: primaryColour: must be a #RRGGBB colour.")
	})

	t.Run("requires plaid credentials", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, "")
		require.NoError(t, os.WriteFile(h.configPath, []byte("data_file: "+h.dataFile+"\n"), 0o600))

		_, err := h.run(t, "link", "--public-token", "public-sandbox-1", "--institution-name", "Chase")
		require.ErrorContains(t, err, "plaid client id and secret are required")
	})
}

func TestAccounts(t *testing.T) {
	t.Parallel()

	t.Run("empty store", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, "")

		output, err := h.run(t, "accounts")
		require.NoError(t, err)
		require.Equal(t, "No accounts tracked. Run `knot link` to add one.\n", output)
	})

	t.Run("json output", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, "")
		h.link(t)

		accounts := h.accountsJSON(t)
		require.Len(t, accounts, 2)

		require.Equal(t, checkingID, accounts[0]["id"])
		require.Equal(t, "cash", accounts[0]["partition"])
		require.Equal(t, "110.25", accounts[0]["balance"])
		require.Equal(t, "Chase", accounts[0]["institution"])

		require.Equal(t, creditCardID, accounts[1]["id"])
		require.Equal(t, "credit", accounts[1]["partition"])
		require.Equal(t, "410.00", accounts[1]["balance"])
	})

	t.Run("yaml output", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, "")
		h.link(t)

		output, err := h.run(t, "accounts", "-o", "yaml")
		require.NoError(t, err)

		var accounts []map[string]any
		require.NoError(t, yaml.Unmarshal([]byte(output), &accounts))
		require.Len(t, accounts, 2)
		require.Equal(t, checkingID, accounts[0]["id"])
		require.Equal(t, "Plaid Credit Card", accounts[1]["name"])
	})

	t.Run("rejects unknown output", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, "")

		_, err := h.run(t, "accounts", "-o", "xml")
		require.EqualError(t, err, "Output: must be one of text, json, yaml.")
	})
}

func TestBalances(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	h.link(t)

	output, err := h.run(t, "balances")
	require.NoError(t, err)
	require.Contains(t, output, "$110.25")
	require.Contains(t, output, "$410.00")
	require.Contains(t, output, "299.75")
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	t.Run("updates balances and writes metrics", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, "150.5")
		h.link(t)

		metricsFile := filepath.Join(t.TempDir(), "knot.prom")
		output, err := h.run(t, "refresh", "--metrics-textfile", metricsFile)
		require.NoError(t, err)
		require.Equal(t, "Updated 2 account(s)\n", output)
		require.Equal(t, int32(2), h.accountsCalls.Load())

		accounts := h.accountsJSON(t)
		require.Equal(t, "150.50", accounts[0]["balance"])

		metrics, err := os.ReadFile(metricsFile)
		require.NoError(t, err)
		require.Contains(t, string(metrics), "knot_refresh_total 1")
		require.Contains(t, string(metrics), "knot_balances_updated_total 2")
	})

	t.Run("nothing to refresh", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, "")

		_, err := h.run(t, "refresh")
		require.EqualError(t, err, "refresh: no tracked accounts")
	})
}

func TestTransactions(t *testing.T) {
	t.Parallel()

	t.Run("csv output newest first", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, "")
		h.link(t)

		output, err := h.run(t, "transactions", "--start", "2025-02-01", "--end", "2025-03-31", "--format", "csv")
		require.NoError(t, err)

		expected := `id,date,account_id,name,amount,currency
lPNjeW1nR6CDn5okmGQ6hEpMo4lLNoSrzqDje,2025-03-02,BxBXxLj1m4HMXBm9WZZmCWVbPjX16EHwv99vp,Apple Store,2307.21,USD
9vVvLJzXAoTxR9W8NQ3rUXdpd7BXeBFVbdnJz,2025-03-01,BxBXxLj1m4HMXBm9WZZmCWVbPjX16EHwv99vp,INTRST PYMNT,-4.22,USD
Xx8qq1DQRbSbN6QjR6bXcKmNq5kp4XHNLlPLm,2025-02-27,3gE5gnRzNyfXpBK5wEEKcymJ5albGVUqg77gr,United Airlines,500.00,USD
`
		require.Equal(t, expected, output)
	})

	t.Run("filters by account", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, "")
		h.link(t)

		output, err := h.run(t, "transactions", "--start", "2025-02-01", "--end", "2025-03-31", "--account", creditCardID)
		require.NoError(t, err)
		require.Contains(t, output, "United Airlines")
		require.Contains(t, output, "Plaid Credit Card")
		require.Contains(t, output, "Chase")
		require.NotContains(t, output, "Apple Store")
	})

	t.Run("rejects unknown account", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, "")
		h.link(t)

		_, err := h.run(t, "transactions", "--account", "NOPE")
		require.EqualError(t, err, "transactions: account not found: NOPE")
	})

	t.Run("rejects invalid options", func(t *testing.T) {
		t.Parallel()

		tests := map[string]struct {
			args        []string
			expectedErr string
		}{
			"bad start date": {
				args:        []string{"--start", "03/01/2025"},
				expectedErr: "StartDate: must be a date (YYYY-MM-DD).",
			},
			"end before start": {
				args:        []string{"--start", "2025-03-31", "--end", "2025-03-01"},
				expectedErr: `end date "2025-03-01" must not be before start date "2025-03-31"`,
			},
			"unknown format": {
				args:        []string{"--format", "qif"},
				expectedErr: "Format: unsupported format.",
			},
			"non positive days": {
				args:        []string{"--days", "0"},
				expectedErr: "Days: must be at least 1.",
			},
		}

		for name, test := range tests {
			t.Run(name, func(t *testing.T) {
				t.Parallel()

				h := newHarness(t, "")

				_, err := h.run(t, append([]string{"transactions"}, test.args...)...)
				require.EqualError(t, err, test.expectedErr)
			})
		}
	})
}

func TestDelete(t *testing.T) {
	t.Parallel()

	t.Run("deletes one account", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, "")
		h.link(t)

		output, err := h.run(t, "delete", checkingID)
		require.NoError(t, err)
		require.Equal(t, "Deleted account "+checkingID+"\n", output)

		accounts := h.accountsJSON(t)
		require.Len(t, accounts, 1)
		require.Equal(t, creditCardID, accounts[0]["id"])
	})

	t.Run("deletes everything", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, "")
		h.link(t)

		output, err := h.run(t, "delete", "--all")
		require.NoError(t, err)
		require.Equal(t, "Deleted 2 account(s)\n", output)
		require.Empty(t, h.accountsJSON(t))

		snapshot, err := os.ReadFile(h.dataFile)
		require.NoError(t, err)
		require.NotContains(t, string(snapshot), accessToken)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		t.Parallel()

		tests := map[string]struct {
			args        []string
			expectedErr string
		}{
			"unknown account": {
				args:        []string{"NOPE"},
				expectedErr: "delete: account not found: NOPE",
			},
			"missing target": {
				args:        nil,
				expectedErr: "delete: an account ID or --all is required",
			},
			"both targets": {
				args:        []string{"--all", checkingID},
				expectedErr: "delete: pass either an account ID or --all, not both",
			},
		}

		for name, test := range tests {
			t.Run(name, func(t *testing.T) {
				t.Parallel()

				h := newHarness(t, "")

				_, err := h.run(t, append([]string{"delete"}, test.args...)...)
				require.EqualError(t, err, test.expectedErr)
			})
		}
	})
}

func TestVersion(t *testing.T) {
	t.Parallel()

	stdout := bytes.NewBuffer(nil)
	require.NoError(t, cmd.Main(t.Context(), []string{"knot", "--version"}, stdout, bytes.NewBuffer(nil)))
	require.Contains(t, stdout.String(), "knot version")
}
