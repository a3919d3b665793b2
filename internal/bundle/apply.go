package bundle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/hapticd/internal/rules"
)

// Failure is an entry Apply could not write.
type Failure struct {
	Entry string `json:"entry"`
	Error string `json:"error"`
}

// Report summarizes an Apply.
type Report struct {
	Apps     int       `json:"apps"`
	Senders  int       `json:"senders"`
	Mutes    int       `json:"mutes"`
	Failures []Failure `json:"failures,omitempty"`
}

// OK reports whether every entry was applied.
func (r Report) OK() bool { return len(r.Failures) == 0 }

// Apply writes the entries of b to store. Entries the store rejects are
// collected in the report; a backend error stops the apply and is returned.
func Apply(ctx context.Context, store rules.Store, b *Bundle) (Report, error) {
	var report Report

	for _, app := range b.Apps {
		pkg := strings.TrimSpace(app.Package)
		entry := "app:" + pkg
		if pkg == "" {
			report.fail(entry, errors.New("package is required"))
			continue
		}

		if strings.TrimSpace(app.Pattern) != "" {
			_, err := store.Put(ctx, rules.App(pkg), rules.Input{Pattern: app.Pattern, Name: app.Name})
			if rejected(err) {
				report.fail(entry, err)
				continue
			}
			if err != nil {
				return report, fmt.Errorf("apply %s: %w", entry, err)
			}
			report.Apps++
		}

		if app.MuteWhenNoSenderMatch != nil {
			if err := store.SetMute(ctx, pkg, *app.MuteWhenNoSenderMatch); err != nil {
				return report, fmt.Errorf("apply %s mute: %w", entry, err)
			}
			report.Mutes++
		}
	}

	for _, s := range b.Senders {
		pkg := strings.TrimSpace(s.Package)
		sender := strings.TrimSpace(s.Sender)
		entry := "sender:" + pkg + "|" + sender
		switch {
		case pkg == "":
			report.fail(entry, errors.New("package is required"))
			continue
		case sender == "":
			report.fail(entry, errors.New("sender is required"))
			continue
		case strings.TrimSpace(s.Pattern) == "":
			report.fail(entry, errors.New("pattern is required"))
			continue
		}

		_, err := store.Put(ctx, rules.Sender(pkg, sender), rules.Input{
			Pattern: s.Pattern,
			Name:    s.Name,
			Senders: sender,
		})
		if rejected(err) {
			report.fail(entry, err)
			continue
		}
		if err != nil {
			return report, fmt.Errorf("apply %s: %w", entry, err)
		}
		report.Senders++
	}

	return report, nil
}

// ApplyFile loads and applies the bundle at path.
func ApplyFile(ctx context.Context, store rules.Store, path string) (Report, error) {
	b, err := Load(path)
	if err != nil {
		return Report{}, err
	}
	return Apply(ctx, store, b)
}

// Export builds a bundle from every stored rule and every set mute flag,
// including flags of packages that no longer have rules.
func Export(ctx context.Context, store rules.Store) (*Bundle, error) {
	list, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	muted, err := store.MutedPackages(ctx)
	if err != nil {
		return nil, err
	}

	b := &Bundle{}
	apps := make(map[string]int)
	app := func(pkg string) *AppEntry {
		if _, ok := apps[pkg]; !ok {
			apps[pkg] = len(b.Apps)
			b.Apps = append(b.Apps, AppEntry{Package: pkg})
		}
		return &b.Apps[apps[pkg]]
	}

	for _, r := range list {
		switch r.Key.Kind {
		case rules.KindApp:
			e := app(r.Key.Package)
			e.Name = r.Name
			e.Pattern = r.PatternText
		case rules.KindSender:
			b.Senders = append(b.Senders, SenderEntry{
				Package: r.Key.Package,
				Sender:  r.Senders,
				Name:    r.Name,
				Pattern: r.PatternText,
			})
		}
	}
	for _, pkg := range muted {
		v := true
		app(pkg).MuteWhenNoSenderMatch = &v
	}

	b.sort()
	return b, nil
}

func (r *Report) fail(entry string, err error) {
	r.Failures = append(r.Failures, Failure{Entry: entry, Error: err.Error()})
}

func rejected(err error) bool {
	return errors.Is(err, rules.ErrSaveRejected) || errors.Is(err, rules.ErrKeyMismatch)
}
