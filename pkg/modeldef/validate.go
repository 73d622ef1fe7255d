/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package modeldef

import (
	"errors"
	"fmt"
	"strings"
)

// validate checks the whole registry graph. All findings are joined so a
// broken module set reports every problem at once.
func validate(reg *registry) (err error) {
	for _, name := range reg.ordered {
		e := reg.entities[name]
		for _, fn := range e.fieldsOrdered {
			err = errors.Join(err, validateField(reg, e, e.fields[fn]))
		}
		err = errors.Join(err, validateOrder(e))
		err = errors.Join(err, validateHierarchy(e))
		if e.recName != "" {
			if _, ok := e.fields[e.recName]; !ok {
				err = errors.Join(err, errDeclaration("%s: rec name field «%s» does not exist", e.name, e.recName))
			}
		}
	}
	return err
}

func validateField(reg *registry, e *entity, f *field) (err error) {
	if f.kind == KindNull {
		return errDeclaration("%s: field «%s» has no kind", e.name, f.name)
	}

	if f.kind.Relational() {
		co, ok := reg.entities[f.comodel]
		if !ok {
			return errDeclaration("%s: field «%s» references unknown entity «%s»", e.name, f.name, f.comodel)
		}
		if f.kind == KindOne2many {
			inv, ok := co.fields[f.inverse]
			switch {
			case !ok:
				err = errors.Join(err, errDeclaration("%s: one2many «%s» inverse «%s» does not exist on «%s»", e.name, f.name, f.inverse, co.name))
			case inv.kind != KindMany2one:
				err = errors.Join(err, errDeclaration("%s: one2many «%s» inverse «%s» is not a many2one", e.name, f.name, f.inverse))
			case inv.comodel != e.name:
				err = errors.Join(err, errDeclaration("%s: one2many «%s» inverse «%s» points to «%s», not back", e.name, f.name, f.inverse, inv.comodel))
			}
		}
		if f.translate || f.companyDep {
			err = errors.Join(err, errDeclaration("%s: relational field «%s» cannot be translated or company-dependent", e.name, f.name))
		}
	}

	if f.translate && f.kind != KindChar && f.kind != KindText {
		err = errors.Join(err, errDeclaration("%s: only char and text fields can be translated, «%s» is %s", e.name, f.name, f.kind))
	}
	if f.translate && f.companyDep {
		err = errors.Join(err, errDeclaration("%s: field «%s» cannot be both translated and company-dependent", e.name, f.name))
	}

	if f.kind == KindSelection && len(f.selection) == 0 && f.related == "" {
		err = errors.Join(err, errDeclaration("%s: selection field «%s» has no options", e.name, f.name))
	}

	if f.compute != "" && f.related != "" {
		err = errors.Join(err, errDeclaration("%s: field «%s» cannot be both computed and related", e.name, f.name))
	}
	if f.storedForced && f.compute == "" && f.related == "" {
		err = errors.Join(err, errDeclaration("%s: Stored option on plain field «%s»", e.name, f.name))
	}
	if f.stored && f.compute != "" && len(f.depends) == 0 {
		err = errors.Join(err, errDeclaration("%s: stored computed field «%s» must declare its dependencies", e.name, f.name))
	}
	for _, dep := range f.depends {
		if _, perr := e.ResolvePath(dep); perr != nil {
			err = errors.Join(err, fmt.Errorf("%s: field «%s» dependency «%s»: %w", e.name, f.name, dep, perr))
		}
	}
	return err
}

// validateOrder resolves the declared order keys; a key must be a stored
// field of the entity.
func validateOrder(e *entity) (err error) {
	for _, key := range strings.Split(e.Order(), ",") {
		parts := strings.Fields(strings.TrimSpace(key))
		if len(parts) == 0 {
			err = errors.Join(err, errDeclaration("%s: empty order key", e.name))
			continue
		}
		name := parts[0]
		if len(parts) > 1 {
			dir := strings.ToLower(parts[1])
			if dir != "asc" && dir != "desc" {
				err = errors.Join(err, errDeclaration("%s: bad order direction «%s»", e.name, parts[1]))
			}
		}
		f, ok := e.fields[name]
		if !ok {
			err = errors.Join(err, errDeclaration("%s: order key «%s» does not exist", e.name, name))
			continue
		}
		if !f.stored {
			err = errors.Join(err, errDeclaration("%s: order key «%s» is not stored", e.name, name))
		}
	}
	return err
}

func validateHierarchy(e *entity) error {
	if e.parentField == "" {
		return nil
	}
	pf, ok := e.fields[e.parentField]
	if !ok {
		return errDeclaration("%s: parent field «%s» does not exist", e.name, e.parentField)
	}
	if pf.kind != KindMany2one || pf.comodel != e.name {
		return errDeclaration("%s: parent field «%s» must be a many2one to the entity itself", e.name, e.parentField)
	}
	return nil
}
