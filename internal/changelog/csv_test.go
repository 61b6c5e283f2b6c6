package changelog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tramites/internal/diff"
	"github.com/roach88/tramites/internal/value"
)

const (
	t0 = "2025-03-01T14:05+00:00"
	t1 = "2025-03-08T14:05+00:00"
)

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestAppend_MergeModifications(t *testing.T) {
	path := filepath.Join(t.TempDir(), Modifications.FileName())
	existing := "timestamp,id,entidad,nombre,campo,viejo,nuevo\n" +
		"2025-03-01T14:05+00:00,10,Tránsito,Licencia,nombre,Licencia,Licencia B\n" +
		"2025-03-01T14:05+00:00,2,SEGIP,Cédula,costo,10,15\n"
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o644))

	mods := []diff.Modification{
		{Timestamp: t1, ID: "10", Entidad: "Tránsito", Nombre: "Licencia B", Campo: "requisitos[0].nombre",
			Viejo: value.String("foo"), Nuevo: value.String("bar")},
		{Timestamp: t1, ID: "2", Entidad: "SEGIP", Nombre: "Cédula", Campo: "requisitos",
			Viejo: value.Null{}, Nuevo: value.Array{value.Object{"nombre": value.String("CI")}}},
		{Timestamp: t1, ID: "2", Entidad: "SEGIP", Nombre: "Cédula", Campo: "costo",
			Viejo: value.Int(15), Nuevo: value.Int(20)},
	}

	stats, err := Append(path, Modifications, ModificationRows(mods))
	require.NoError(t, err)
	assert.Equal(t, Stats{Existing: 2, Added: 3, Written: true}, stats)
	assert.Equal(t, 5, stats.Total())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	golden(t).Assert(t, "modificaciones_merge", data)
}

func TestAppend_MergeEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), Events.FileName())

	_, err := Append(path, Events, EventRows([]diff.Event{
		{Timestamp: t0, Tipo: diff.Aparece, ID: "7", Entidad: "SEGIP", Nombre: "Certificado"},
	}))
	require.NoError(t, err)

	_, err = Append(path, Events, EventRows([]diff.Event{
		{Timestamp: t1, Tipo: diff.Aparece, ID: "12", Entidad: "Ministerio de Salud, Deportes", Nombre: "Carnet sanitario"},
		{Timestamp: t1, Tipo: diff.Desaparece, ID: "7", Entidad: "SEGIP", Nombre: "Certificado"},
	}))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	golden(t).Assert(t, "adiciones_merge", data)
}

func TestAppend_EmptyBatchDoesNotCreateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), Events.FileName())

	stats, err := Append(path, Events, nil)
	require.NoError(t, err)
	assert.False(t, stats.Written)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAppend_EmptyBatchLeavesFileByteIdentical(t *testing.T) {
	path := filepath.Join(t.TempDir(), Modifications.FileName())
	// Unsorted content proves the file was not rewritten.
	content := "timestamp,id,entidad,nombre,campo,viejo,nuevo\n" +
		"2025-03-08T14:05+00:00,1,E,N,costo,1,2\n" +
		"2025-03-01T14:05+00:00,1,E,N,costo,0,1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	before, err := os.Stat(path)
	require.NoError(t, err)

	_, err = Append(path, Modifications, []Row{})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestAppend_SameBatchTwiceIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), Events.FileName())
	rows := EventRows([]diff.Event{
		{Timestamp: t0, Tipo: diff.Aparece, ID: "1", Entidad: "E", Nombre: "N"},
	})

	_, err := Append(path, Events, rows)
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	stats, err := Append(path, Events, rows)
	require.NoError(t, err)
	assert.Equal(t, Stats{Existing: 1, Skipped: 1}, stats)

	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestAppend_NoRowLostOrDuplicated(t *testing.T) {
	path := filepath.Join(t.TempDir(), Modifications.FileName())

	var batch0, batch1 []Row
	for _, id := range []string{"3", "1", "20", "2"} {
		batch0 = append(batch0, Row{ColTimestamp: t0, ColID: id, ColCampo: "costo", ColViejo: "1", ColNuevo: "2"})
		batch1 = append(batch1, Row{ColTimestamp: t1, ColID: id, ColCampo: "costo", ColViejo: "2", ColNuevo: "3"})
	}

	_, err := Append(path, Modifications, batch0)
	require.NoError(t, err)
	_, err = Append(path, Modifications, batch1)
	require.NoError(t, err)

	rows, err := Read(path, Modifications)
	require.NoError(t, err)
	require.Len(t, rows, 8)

	var got []string
	for _, r := range rows {
		got = append(got, r[ColTimestamp][8:10]+"/"+r[ColID])
	}
	assert.Equal(t, []string{"01/1", "01/2", "01/3", "01/20", "08/1", "08/2", "08/3", "08/20"}, got)
}

func TestRead_HeaderMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.csv")
	require.NoError(t, os.WriteFile(path, []byte("timestamp,id,campo\n"), 0o644))

	_, err := Read(path, Modifications)
	assert.ErrorIs(t, err, ErrHeaderMismatch)

	_, err = Append(path, Modifications, []Row{{ColTimestamp: t0, ColID: "1"}})
	assert.ErrorIs(t, err, ErrHeaderMismatch)
}

func TestRead_ReorderedHeaderAndBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.csv")
	content := "\ufefftipo,timestamp,id,nombre,entidad\naparece,2025-03-01T14:05+00:00,5,N,E\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rows, err := Read(path, Events)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "aparece", rows[0][ColTipo])
	assert.Equal(t, "E", rows[0][ColEntidad])
}

func TestRead_MissingFile(t *testing.T) {
	rows, err := Read(filepath.Join(t.TempDir(), "nope.csv"), Events)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMerge_SortKeys(t *testing.T) {
	existing := []Row{
		{ColTimestamp: t0, ColID: "1", ColTipo: "desaparece"},
	}
	incoming := []Row{
		{ColTimestamp: t0, ColID: "1", ColTipo: "aparece"},
		{ColTimestamp: t0, ColID: "abc", ColTipo: "aparece"},
		{ColTimestamp: t0, ColID: "0", ColTipo: "aparece"},
	}

	merged, added, skipped := Merge(existing, incoming, Events)

	assert.Equal(t, 3, added)
	assert.Equal(t, 0, skipped)
	var got []string
	for _, r := range merged {
		got = append(got, r[ColID]+"/"+r[ColTipo])
	}
	assert.Equal(t, []string{"0/aparece", "1/aparece", "1/desaparece", "abc/aparece"}, got)
}
