package orders

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizePINumber(t *testing.T) {
	require.Equal(t, "PI-2024-18", SanitizePINumber(" pi-2024-18 "))
	require.Equal(t, "PI202418", SanitizePINumber("pi 2024/18"))
	require.Equal(t, "", SanitizePINumber("  ***  "))
}

func TestRequiredDocumentsIssued(t *testing.T) {
	lines := []Line{
		{PINumber: "pi-2024-18", Status: LineStatusPending},
		{PINumber: "PI-2024-18", Status: LineStatusPending},
		{PINumber: "pi-2024-02", Status: LineStatusPending},
		{PINumber: "pi-9999-99", Status: LineStatusCancelled},
		{PINumber: "", Status: LineStatusPending},
	}
	reqs := RequiredDocuments(StatusIssued, lines)
	require.Len(t, reqs, 2)
	require.Equal(t, "pi-confirmation-PI-2024-02", reqs[0].ID)
	require.Equal(t, "pi-confirmation-PI-2024-18", reqs[1].ID)
}

func TestRequiredDocumentsManufacturing(t *testing.T) {
	lines := []Line{
		{SKUCode: "TW/Tote Canvas", Status: LineStatusPending},
		{SKUCode: "tw-tote-canvas", Status: LineStatusPending},
		{SKUCode: "TW-POUCH-S", Status: LineStatusPending},
	}
	reqs := RequiredDocuments(StatusManufacturing, lines)
	require.Len(t, reqs, 3)
	require.Equal(t, "artwork-tw-pouch-s", reqs[0].ID)
	require.Equal(t, "artwork-tw-tote-canvas", reqs[1].ID)
	require.Equal(t, "inspection-report", reqs[2].ID)
}

func TestRequiredDocumentsFixedStages(t *testing.T) {
	ocean := RequiredDocuments(StatusOcean, nil)
	require.Len(t, ocean, 3)
	require.Equal(t, "commercial-invoice", ocean[0].ID)
	require.Equal(t, "bill-of-lading", ocean[1].ID)
	require.Equal(t, "packing-list", ocean[2].ID)

	warehouse := RequiredDocuments(StatusWarehouse, nil)
	require.Len(t, warehouse, 2)
	require.Equal(t, "goods-received-note", warehouse[0].ID)
	require.Equal(t, "customs-clearance", warehouse[1].ID)

	require.Empty(t, RequiredDocuments(StatusRFQ, nil))
	require.Empty(t, RequiredDocuments(StatusShipped, nil))
}

func TestSlugifySKUFoldsDiacritics(t *testing.T) {
	lines := []Line{{SKUCode: "Café Blend №2", Status: LineStatusPending}}
	reqs := RequiredDocuments(StatusManufacturing, lines)
	require.Equal(t, "artwork-cafe-blend-2", reqs[0].ID)
}
