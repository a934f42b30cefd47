package blocklist

import "github.com/haukened/rr-recursor/internal/dns/domain"

// NopRepository allows every name. It is used when no blocklist file is configured.
type NopRepository struct{}

func (NopRepository) Decide(string) domain.BlockDecision { return domain.AllowDecision() }

func (NopRepository) UpdateAll([]domain.BlockRule, uint64, int64) error { return nil }

func (NopRepository) Stats() RepoStats { return RepoStats{} }

var _ Repository = NopRepository{}
