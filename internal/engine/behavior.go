package engine

import (
	"github.com/chaifeng/proxy.pac/internal/model"
)

// Behaviors maps actions to directive strings.
type Behaviors struct {
	directives    map[model.Action]string
	defaultAction model.Action
	fallback      string
}

// NewBehaviors copies directives. The fallback directive is
// "DIRECT; <directive of defaultProxy>", or just "DIRECT" when the default
// proxy has no directive of its own.
func NewBehaviors(directives map[model.Action]string, defaultProxy model.Action) *Behaviors {
	b := &Behaviors{
		directives:    make(map[model.Action]string, len(directives)),
		defaultAction: defaultProxy,
		fallback:      model.DirectDirective,
	}
	for action, directive := range directives {
		b.directives[action] = directive
	}
	if proxy := b.directives[defaultProxy]; proxy != "" {
		b.fallback = model.DirectDirective + "; " + proxy
	}
	return b
}

// Resolve returns the directive for action, or the fallback directive when
// none is configured.
func (b *Behaviors) Resolve(action model.Action) string {
	if directive := b.directives[action]; directive != "" {
		return directive
	}
	return b.fallback
}

// Default returns the directive used when no rule matched.
func (b *Behaviors) Default() string {
	return b.fallback
}

func (b *Behaviors) DefaultProxy() model.Action {
	return b.defaultAction
}

// Directive returns the configured directive for action without falling back.
func (b *Behaviors) Directive(action model.Action) (string, bool) {
	directive, ok := b.directives[action]
	return directive, ok && directive != ""
}
