package providers

// Info describes an enabled provider for clients choosing a login method.
type Info struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	PKCE bool   `json:"pkce"`
}

// Registry is the immutable lookup table of enabled providers.
type Registry struct {
	byID map[ID]Provider
}

// NewRegistry indexes the given adapters. Later duplicates replace earlier ones.
func NewRegistry(adapters ...Provider) *Registry {
	r := &Registry{byID: make(map[ID]Provider, len(adapters))}
	for _, p := range adapters {
		if p != nil {
			r.byID[p.ID()] = p
		}
	}
	return r
}

// Get returns the adapter for id, if enabled.
func (r *Registry) Get(id ID) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.byID[id]
	return p, ok
}

// Len returns the number of enabled providers.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byID)
}

// Infos lists enabled providers in display order.
func (r *Registry) Infos() []Info {
	out := make([]Info, 0, r.Len())
	for _, id := range All() {
		p, ok := r.Get(id)
		if !ok {
			continue
		}
		out = append(out, Info{ID: id.String(), Name: id.DisplayName(), PKCE: p.UsesPKCE()})
	}
	return out
}
