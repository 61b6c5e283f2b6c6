package changelog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cambios.xlsx")

	err := ExportXLSX(path,
		Sheet{Table: Events, Rows: []Row{
			{ColTimestamp: t0, ColTipo: "aparece", ColID: "7", ColEntidad: "SEGIP", ColNombre: "Certificado"},
		}},
		Sheet{Table: Modifications, Rows: []Row{
			{ColTimestamp: t1, ColID: "2", ColCampo: "costo", ColViejo: "10", ColNuevo: "15"},
			{ColTimestamp: t1, ColID: "3", ColCampo: "plazo", ColViejo: "", ColNuevo: "2 días"},
		}},
	)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"adiciones", "modificaciones"}, f.GetSheetList())

	events, err := f.GetRows("adiciones")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, Events.Columns, events[0])
	assert.Equal(t, []string{t0, "aparece", "7", "SEGIP", "Certificado"}, events[1])

	mods, err := f.GetRows("modificaciones")
	require.NoError(t, err)
	require.Len(t, mods, 3)
	assert.Equal(t, "2 días", mods[2][6])
}

func TestExportXLSX_NoSheets(t *testing.T) {
	err := ExportXLSX(filepath.Join(t.TempDir(), "x.xlsx"))
	assert.Error(t, err)
}
