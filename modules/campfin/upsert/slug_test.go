package upsert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	cases := map[string][]string{
		"jose-o-neil-jr":       {"José", "O'Neil", "Jr."},
		"friends-of-nm-parks":  {"  Friends of NM Parks!! "},
		"muller-pena":          {"Müller", "", "Peña"},
		"committee-2024":       {"Committee/2024"},
		"":                     {"  ", "¿?"},
		"zoe-saldana-for-mesa": {"Zoë Saldaña for Mesa"},
	}
	for want, parts := range cases {
		require.Equal(t, want, Slugify(parts...), "%q", parts)
	}
}

func TestSlugify_Stable(t *testing.T) {
	require.Equal(t, Slugify("Ana", "Ñúñez"), Slugify("Ana", "Ñúñez"))
}
