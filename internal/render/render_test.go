package render

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderRepeatSection(t *testing.T) {
	e := New(map[string]string{
		"T": "Head {{title}}\n{{#repeat}}{{#}}. {{name#}}\n{{/repeat}}Tail\n",
	})
	out, err := e.Render(context.Background(), "T", map[string]string{
		"title":  "deed",
		"name#1": "Ana",
		"name#2": "Ben",
	}, 2)
	require.NoError(t, err)
	assert.Equal(t, "Head deed\n1. Ana\n2. Ben\nTail\n", string(out))
}

func TestRenderIsDeterministic(t *testing.T) {
	e := New(nil)
	vars := map[string]string{
		"legal_number": "001/25", "case_file_title": "T", "case_file_id": "C", "district_id": "D",
		"property_reference": "R", "land_use_category": "residential", "area": "120", "unit_price": "40",
		"valuation": "4800", "applicant_name#1": "Ana", "applicant_national_id#1": "N1",
		"consolidated_amount": "100", "issued_on": "2025-01-02",
	}
	a, err := e.Render(context.Background(), "RECEIPT", vars, 1)
	require.NoError(t, err)
	b, err := e.Render(context.Background(), "RECEIPT", vars, 1)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Contains(t, string(a), "PAYMENT RECEIPT No. 001/25")
	assert.Contains(t, string(a), "Received from: Ana (N1)")
}

func TestRenderReportsMissingVariables(t *testing.T) {
	e := New(map[string]string{"T": "{{a}} {{b}}\n{{#repeat}}{{c#}}{{/repeat}}"})
	_, err := e.Render(context.Background(), "T", map[string]string{"a": "x", "c#1": "y"}, 2)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, []string{"b", "c#2"}, rerr.Missing)
}

func TestRenderRejectsBlockPlaceholderOutsideSection(t *testing.T) {
	e := New(map[string]string{"T": "{{name#}}"})
	_, err := e.Render(context.Background(), "T", map[string]string{"name#1": "x"}, 1)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, []string{"name#"}, rerr.Missing)
}

func TestRenderUnknownType(t *testing.T) {
	_, err := New(nil).Render(context.Background(), "PERMIT", nil, 0)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Contains(t, rerr.Error(), "no template registered")
}

func TestRenderHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).Render(ctx, "RECEIPT", nil, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
