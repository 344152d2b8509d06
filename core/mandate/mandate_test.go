package mandate

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRef(t *testing.T) {
	tests := []struct {
		name          string
		memberNo      int
		forCoopShares bool
		want          *regexp.Regexp
	}{
		{name: "coop shares", memberNo: 42, forCoopShares: true, want: regexp.MustCompile(`^000042/GENO$`)},
		{name: "subscription", memberNo: 42, want: regexp.MustCompile(`^000042/[0-9A-F]{12}$`)},
		{name: "large member no", memberNo: 1234567, forCoopShares: true, want: regexp.MustCompile(`^1234567/GENO$`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := NewRef(tt.memberNo, tt.forCoopShares)
			assert.Regexp(t, tt.want, ref)
			assert.LessOrEqual(t, len(ref), MaxLength)
			assert.Equal(t, tt.forCoopShares, IsForCoopShares(ref))
		})
	}

	assert.NotEqual(t, NewRef(1, false), NewRef(1, false))
}

func TestIsForCoopShares(t *testing.T) {
	assert.True(t, IsForCoopShares("000001/GENO"))
	assert.False(t, IsForCoopShares("000001/0A1B2C3D4E5F"))
	assert.False(t, IsForCoopShares("GENO"))
}
