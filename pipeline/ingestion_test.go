package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadTableCSVWithBOM(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Training.csv", "\xef\xbb\xbfitching,fever,prognosis,\n1,0,Flu,\n")
	table, err := ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"itching", "fever", "prognosis", ""}, table.Header)
	assert.Len(t, table.Records, 1)
}

func TestReadTableMissing(t *testing.T) {
	_, err := ReadTable(filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestReadTableMalformedCSV(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.csv", "a,b,prognosis\n1,\"0,Flu\n")
	_, err := ReadTable(path)
	assert.ErrorIs(t, err, ErrMalformedDataset)
}

func TestReadTableExcel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Training.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"itching", "fever", "prognosis"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{1, 0, "Flu"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	ds, err := LoadDataset(path, "prognosis", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"itching", "fever"}, ds.Columns)
	assert.Equal(t, [][]float64{{1, 0}}, ds.Features)
	assert.Equal(t, []string{"Flu"}, ds.Labels)
}

func TestLoadDatasetDropsTrailingColumn(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Training.csv",
		"itching,skin_rash,fever,prognosis,\n1,1,0,Fungal infection,\n0,0,1,Malaria,\n")
	ds, err := LoadDataset(path, "prognosis", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"itching", "skin_rash", "fever"}, ds.Columns)
	assert.Len(t, ds.Features, 2)
}
