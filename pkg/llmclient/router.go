package llmclient

import (
	"context"
	"sync"
)

// Router picks a model per call stage (planning, execution, validation)
// while delegating the actual call to a single underlying Provider.
type Router struct {
	mu sync.RWMutex

	provider Provider

	planningModel   string
	executionModel  string
	validationModel string
	defaultModel    string
}

// NewRouter creates a router over provider, defaulting every stage to the
// provider's first advertised model.
func NewRouter(provider Provider) *Router {
	models := provider.Models()
	defaultModel := ""
	if len(models) > 0 {
		defaultModel = models[0]
	}

	return &Router{
		provider:        provider,
		planningModel:   defaultModel,
		executionModel:  defaultModel,
		validationModel: defaultModel,
		defaultModel:    defaultModel,
	}
}

func (r *Router) SetPlanningModel(model string) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.planningModel = model
	return r
}

func (r *Router) SetExecutionModel(model string) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executionModel = model
	return r
}

func (r *Router) SetValidationModel(model string) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validationModel = model
	return r
}

// ForPlanning returns a Provider fixed to the planning model.
func (r *Router) ForPlanning() Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &routedProvider{router: r, model: r.planningModel}
}

// ForExecution returns a Provider fixed to the execution model.
func (r *Router) ForExecution() Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &routedProvider{router: r, model: r.executionModel}
}

// ForValidation returns a Provider fixed to the validation model.
func (r *Router) ForValidation() Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &routedProvider{router: r, model: r.validationModel}
}

func (r *Router) Name() string { return "router:" + r.provider.Name() }

func (r *Router) Models() []string { return r.provider.Models() }

// Complete completes using the router's default model when req.Model is unset.
func (r *Router) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	if req.Model == "" {
		r.mu.RLock()
		req.Model = r.defaultModel
		r.mu.RUnlock()
	}
	return r.provider.Complete(ctx, req)
}

// routedProvider pins a Router to a single model so stage actors can depend
// on a plain Provider without knowing about routing.
type routedProvider struct {
	router *Router
	model  string
}

func (p *routedProvider) Name() string { return p.router.provider.Name() }

func (p *routedProvider) Models() []string { return []string{p.model} }

func (p *routedProvider) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	req.Model = p.model
	return p.router.provider.Complete(ctx, req)
}
