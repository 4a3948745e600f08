package claimd

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"airdrop/config"
	"airdrop/crypto"
	"airdrop/native/claims"
)

// fakeLedger answers the two JSON-RPC reads the transaction builder performs.
func fakeLedger(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		response := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "getLatestBlockhash":
			response["result"] = map[string]any{
				"context": map[string]any{"slot": 1},
				"value":   map[string]any{"blockhash": testAddress(5), "lastValidBlockHeight": 100},
			}
		case "getAccountInfo":
			response["result"] = map[string]any{"context": map[string]any{"slot": 1}, "value": nil}
		default:
			response["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, rpcURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	allocation := filepath.Join(dir, "whitelist.csv")
	require.NoError(t, os.WriteFile(allocation, []byte("wallet_address,claim_amount\n"+walletOne+",10\n"+walletTwo+",0.5\n"), 0o600))
	key, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	raw, err := key.MarshalJSON()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.AllocationFile = allocation
	cfg.Snapshot.Path = filepath.Join(dir, "state", "claims.csv")
	cfg.Journal.Driver = "bolt"
	cfg.Journal.Path = filepath.Join(dir, "state", "journal.db")
	cfg.Solana.RPCURL = rpcURL
	cfg.Solana.Mint = testAddress(7)
	cfg.Solana.Keypair = string(raw)
	cfg.Server.ListenAddress = "127.0.0.1:0"
	require.NoError(t, cfg.Validate())
	return cfg
}

func postClaim(t *testing.T, handler http.Handler, path, address string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"userAddress":"`+address+`"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestAppImportsAllocationAndIssues(t *testing.T) {
	ledger := fakeLedger(t)
	cfg := testConfig(t, ledger.URL)

	app, err := NewApp(context.Background(), cfg, discardLogs)
	require.NoError(t, err)

	snapshot, err := os.ReadFile(cfg.Snapshot.Path)
	require.NoError(t, err, "import must be persisted immediately")
	require.Contains(t, string(snapshot), walletOne)

	res := postClaim(t, app.Handler(), "/generate-claim-tx", walletOne)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var body struct {
		Tx     string      `json:"tx"`
		Amount json.Number `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, json.Number("10"), body.Amount)
	tx, err := base64.StdEncoding.DecodeString(body.Tx)
	require.NoError(t, err)
	require.Greater(t, len(tx), 64*2)
	require.NoError(t, app.Close())

	// A restart restores the snapshot and ignores the allocation file.
	require.NoError(t, os.WriteFile(cfg.AllocationFile, []byte("wallet_address,claim_amount\n"+testAddress(3)+",1\n"), 0o600))
	restarted, err := NewApp(context.Background(), cfg, discardLogs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = restarted.Close() })

	entry, ok := restarted.Issuer().Store().Lookup(walletOne)
	require.True(t, ok)
	require.Equal(t, claims.StateReserved, entry.State)
	_, ok = restarted.Issuer().Store().Lookup(testAddress(3))
	require.False(t, ok)

	history, err := restarted.Issuer().Store().History(context.Background(), walletOne)
	require.NoError(t, err)
	require.Len(t, history, 1)

	require.Equal(t, http.StatusOK, postClaim(t, restarted.Handler(), "/confirm-claim", walletOne).Code)
	require.Equal(t, http.StatusForbidden, postClaim(t, restarted.Handler(), "/generate-claim-tx", walletOne).Code)
}

func TestAppRejectsMissingAllocation(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.AllocationFile = filepath.Join(t.TempDir(), "missing.csv")
	_, err := NewApp(context.Background(), cfg, discardLogs)
	require.ErrorContains(t, err, "open allocation file")
}

func TestAppServeStopsOnCancel(t *testing.T) {
	ledger := fakeLedger(t)
	cfg := testConfig(t, ledger.URL)
	cfg.Journal.Driver = "leveldb"
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal")
	app, err := NewApp(context.Background(), cfg, discardLogs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, listener) }()

	url := "http://" + listener.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		res, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = res.Body.Close()
		return res.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
