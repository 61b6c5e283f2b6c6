package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tramites/internal/changelog"
	"github.com/roach88/tramites/internal/snapshot"
)

// portal is a fake catalog API whose contents can change between runs.
type portal struct {
	mu      sync.Mutex
	details map[string]map[string]any // slug -> datos
	order   []string
	broken  bool
}

func (p *portal) set(records ...map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.details = map[string]map[string]any{}
	p.order = nil
	for _, r := range records {
		slug := r["slug"].(string)
		p.details[slug] = r
		p.order = append(p.order, slug)
	}
}

func (p *portal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.broken {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/tramites" {
		var filas []map[string]any
		if r.URL.Query().Get("pagina") == "1" {
			for _, slug := range p.order {
				d := p.details[slug]
				filas = append(filas, map[string]any{"id": d["id"], "nombre": d["nombre"], "slug": slug})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"datos": map[string]any{"filas": filas, "total": len(p.order)},
		})
		return
	}

	slug := strings.TrimPrefix(r.URL.Path, "/tramites/")
	d, ok := p.details[slug]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"datos": d})
}

func tramite(id int, slug, nombre string, costo int, requisito string) map[string]any {
	return map[string]any{
		"id":         id,
		"slug":       slug,
		"nombre":     nombre,
		"entidad":    map[string]any{"nombre": "Alcaldia"},
		"costo":      costo,
		"requisitos": []any{map[string]any{"descripcion": requisito}},
	}
}

func writeHarvestConfig(t *testing.T, baseURL, dataDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tramites.yaml")
	cfg := fmt.Sprintf(`
api:
  base_url: %s
  retry:
    max_retries: 1
    base_delay: 1ms
data:
  dir: %s
  composite: [requisitos]
logging:
  level: error
`, baseURL, dataDir)
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestHarvest_ColdStartThenChanges(t *testing.T) {
	p := &portal{}
	srv := httptest.NewServer(p)
	defer srv.Close()

	dataDir := t.TempDir()
	cfgPath := writeHarvestConfig(t, srv.URL, dataDir)

	p.set(
		tramite(1, "licencia", "Licencia", 10, "CI"),
		tramite(2, "permiso", "Permiso", 5, "NIT"),
	)
	out, err := execute(t, "harvest", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "stored baseline")

	snap, err := snapshot.Load(filepath.Join(dataDir, snapshot.RecordsFile))
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())

	p.set(
		tramite(1, "licencia", "Licencia", 12, "CI vigente"),
		tramite(3, "registro", "Registro", 0, "Formulario"),
	)
	out, err = execute(t, "harvest", "--config", cfgPath, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			ColdStart bool `json:"cold_start"`
			Changes   struct {
				Arrivals      int `json:"arrivals"`
				Departures    int `json:"departures"`
				Modifications int `json:"modifications"`
			} `json:"changes"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.False(t, resp.Data.ColdStart)
	assert.Equal(t, 1, resp.Data.Changes.Arrivals)
	assert.Equal(t, 1, resp.Data.Changes.Departures)
	assert.Equal(t, 2, resp.Data.Changes.Modifications)

	mods, err := changelog.Read(filepath.Join(dataDir, changelog.Modifications.FileName()), changelog.Modifications)
	require.NoError(t, err)
	require.Len(t, mods, 2)
	assert.Equal(t, "requisitos[0].descripcion", mods[1][changelog.ColCampo])

	// The ledger sits in the data directory by default.
	out, err = execute(t, "history", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "TIMESTAMP")
	assert.Equal(t, 3, strings.Count(strings.TrimSpace(out), "\n")+1)
}

func TestHarvest_ListingFailure(t *testing.T) {
	p := &portal{broken: true}
	srv := httptest.NewServer(p)
	defer srv.Close()

	dataDir := t.TempDir()
	cfgPath := writeHarvestConfig(t, srv.URL, dataDir)

	_, err := execute(t, "harvest", "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.NoFileExists(t, filepath.Join(dataDir, snapshot.RecordsFile))
}

func TestHarvest_MissingConfigFile(t *testing.T) {
	_, err := execute(t, "harvest", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestHarvest_MaxFlagLimitsFetch(t *testing.T) {
	p := &portal{}
	srv := httptest.NewServer(p)
	defer srv.Close()

	dataDir := t.TempDir()
	cfgPath := writeHarvestConfig(t, srv.URL, dataDir)
	p.set(
		tramite(1, "a", "A", 1, "x"),
		tramite(2, "b", "B", 1, "x"),
		tramite(3, "c", "C", 1, "x"),
	)

	_, err := execute(t, "harvest", "--config", cfgPath, "--max", "2")
	require.NoError(t, err)

	snap, err := snapshot.Load(filepath.Join(dataDir, snapshot.RecordsFile))
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())
}
