package util

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestGetSubViperMissingSection(t *testing.T) {
	v := viper.New()
	sub := GetSubViper(v, "kairosdb")
	require.NotNil(t, sub)
	sub.SetDefault("port", 4242)
	require.Equal(t, 4242, sub.GetInt("port"))
}

func TestGetSubViperEnv(t *testing.T) {
	t.Setenv("GKD_KAIROSDB_HOST", "metrics.example.com")
	v := viper.New()
	v.Set("kairosdb.port", 4343)
	sub := GetSubViper(v, "kairosdb")
	sub.SetDefault("host", "localhost")
	require.Equal(t, "metrics.example.com", sub.GetString("host"))
	require.Equal(t, 4343, sub.GetInt("port"))
}
