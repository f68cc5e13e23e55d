package catalog

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brewery-production-backend/config"
	"brewery-production-backend/internal/apperr"
)

func TestPackageTypes_Lookup(t *testing.T) {
	types := NewPackageTypes(nil)

	testCases := []struct {
		kind, size string
		code       string
		liters     string
	}{
		{"KEG", "1/2BBL", "KEG_HALF", "58.67"},
		{"keg", "1/6 bbl", "KEG_SIXTH", "19.55"},
		{"can", "12 oz", "CAN_12OZ", "0.355"},
		{"Bottle", "22-oz", "BTL_22OZ", "0.65"},
	}
	for _, tc := range testCases {
		t.Run(tc.code, func(t *testing.T) {
			pt, err := types.Lookup(tc.kind, tc.size)
			require.NoError(t, err)
			assert.Equal(t, tc.code, pt.Code)
			assert.True(t, pt.VolumeLiters.Equal(decimal.RequireFromString(tc.liters)))
		})
	}
}

func TestPackageTypes_Unknown(t *testing.T) {
	_, err := NewPackageTypes(nil).Lookup("CASK", "FIRKIN")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUnknownPackageType))

	appErr, _ := apperr.As(err)
	assert.Equal(t, "CASK", appErr.Params["kind"])
}

func TestPackageTypes_Overrides(t *testing.T) {
	types := NewPackageTypes([]config.PackageTypeConfig{
		{Kind: "keg", Size: "50L", Code: "KEG_50L", VolumeLiters: 50},
		{Kind: "can", Size: "12oz", Code: "CAN_355", VolumeLiters: 0.355},
		{Kind: "", Size: "x", Code: "IGNORED"},
	})

	pt, err := types.Lookup("KEG", "50 L")
	require.NoError(t, err)
	assert.Equal(t, "KEG_50L", pt.Code)

	pt, err = types.Lookup("CAN", "12OZ")
	require.NoError(t, err)
	assert.Equal(t, "CAN_355", pt.Code)

	all := types.All()
	assert.Len(t, all, len(DefaultPackageTypes())+1)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Code, all[i].Code)
	}
}
