package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gearledger/internal/domain"
)

func TestValidSlug(t *testing.T) {
	for slug, want := range map[string]bool{
		"drill-1":  true,
		"ladder":   true,
		"a1-b2-c3": true,
		"":         false,
		"Drill":    false,
		"drill--1": false,
		"-drill":   false,
		"drill-":   false,
		"drill 1":  false,
		"drill_1":  false,
	} {
		assert.Equal(t, want, domain.ValidSlug(slug), slug)
	}
}
