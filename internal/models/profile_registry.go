package models

import "regexp"

// ProfileRegistry holds ordered ModelProfile entries and resolves them
// against a provider/model pair.
type ProfileRegistry struct {
	profiles []ModelProfile
}

// NewDefaultRegistry returns a registry populated with the built-in profiles.
func NewDefaultRegistry() *ProfileRegistry {
	return &ProfileRegistry{profiles: builtinProfiles()}
}

// NewRegistry returns a registry with the given profiles, in resolution order.
func NewRegistry(profiles ...ModelProfile) *ProfileRegistry {
	return &ProfileRegistry{profiles: profiles}
}

// Resolve walks the registry profiles, matches by provider then by model
// regexp, merges layers, and returns a fully resolved profile.
func (r *ProfileRegistry) Resolve(provider, model string) ResolvedProfile {
	merged := ModelProfile{}
	for _, p := range r.profiles {
		if !profileMatches(p, provider, model) {
			continue
		}
		merged = mergeProfiles(merged, p)
	}
	return toResolved(merged)
}

// ContextConfigFor returns a copy of base with MaxContextTokens set to the
// declared window of the given model. Called before every budget check.
func (r *ProfileRegistry) ContextConfigFor(mc ModelConfig, base ContextConfig) ContextConfig {
	return base.WithMaxContextTokens(r.Resolve(mc.Provider, mc.Model).ContextWindow)
}

func profileMatches(p ModelProfile, provider, model string) bool {
	if p.Provider == "" && p.ModelPattern == "" {
		return true
	}
	if p.Provider != "" && p.Provider != provider {
		return false
	}
	if p.ModelPattern == "" {
		return true
	}
	matched, err := regexp.MatchString(p.ModelPattern, model)
	if err != nil {
		return false
	}
	return matched
}

func toResolved(p ModelProfile) ResolvedProfile {
	r := ResolvedProfile{
		Temperature:     p.Temperature,
		PromptSuffix:    p.PromptSuffix,
		ProjectDocNames: p.ProjectDocNames,
	}
	if p.ContextWindow != nil {
		r.ContextWindow = *p.ContextWindow
	}
	if p.MaxTokens != nil {
		r.MaxTokens = *p.MaxTokens
	}
	return r
}
