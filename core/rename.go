package core

import (
	"context"
	"errors"
	"sync"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
)

// EditorMode is the state of a RenameEditor.
type EditorMode int

const (
	// EditorViewing shows the stored name.
	EditorViewing EditorMode = iota
	// EditorRenaming holds a draft name.
	EditorRenaming
)

func (m EditorMode) String() string {
	switch m {
	case EditorRenaming:
		return "renaming"
	default:
		return "viewing"
	}
}

// EditorKey is a key press routed to the editor.
type EditorKey int

const (
	// KeyConfirm commits the draft.
	KeyConfirm EditorKey = iota + 1
	// KeyCancel discards the draft.
	KeyCancel
)

// ErrEditorBusy is returned when Begin is called while another rename is open.
var ErrEditorBusy = errors.New("rename already in progress")

// RenameFunc writes the new name of an entity.
type RenameFunc func(ctx context.Context, kind schema.EntityKind, id schema.EntityID, name string) error

// RenameEditor is the inline rename state machine:
// Viewing -> Renaming -> (commit | cancel) -> Viewing.
type RenameEditor struct {
	rename RenameFunc

	mu         sync.Mutex
	mode       EditorMode
	kind       schema.EntityKind
	id         schema.EntityID
	original   string
	draft      string
	committing bool
}

// NewRenameEditor constructs an editor writing through rename.
func NewRenameEditor(rename RenameFunc) *RenameEditor {
	return &RenameEditor{rename: rename}
}

// Begin enters Renaming for the entity, seeding the draft with its name.
func (e *RenameEditor) Begin(kind schema.EntityKind, id schema.EntityID, current string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode == EditorRenaming {
		if e.kind == kind && e.id == id {
			return nil
		}
		return ErrEditorBusy
	}
	e.mode = EditorRenaming
	e.kind = kind
	e.id = id
	e.original = current
	e.draft = current
	return nil
}

// SetDraft replaces the draft name.
func (e *RenameEditor) SetDraft(value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode == EditorRenaming {
		e.draft = value
	}
}

// Mode returns the current state.
func (e *RenameEditor) Mode() EditorMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Draft returns the draft name and the entity being renamed.
func (e *RenameEditor) Draft() (schema.EntityKind, schema.EntityID, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kind, e.id, e.draft
}

// Key routes a key press. Confirm commits and cancel discards.
func (e *RenameEditor) Key(ctx context.Context, key EditorKey) error {
	switch key {
	case KeyConfirm:
		return e.Commit(ctx)
	case KeyCancel:
		e.Cancel()
	}
	return nil
}

// Blur commits the draft, like leaving the field.
func (e *RenameEditor) Blur(ctx context.Context) error {
	return e.Commit(ctx)
}

// Commit writes the draft. An unchanged draft returns to Viewing without a
// write. On failure the editor stays in Renaming with the draft kept.
func (e *RenameEditor) Commit(ctx context.Context) error {
	e.mu.Lock()
	if e.mode != EditorRenaming || e.committing {
		e.mu.Unlock()
		return nil
	}
	name, err := schema.NormalizeName(e.draft)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if name == e.original {
		e.resetLocked()
		e.mu.Unlock()
		return nil
	}
	kind, id := e.kind, e.id
	e.committing = true
	e.mu.Unlock()

	err = e.rename(ctx, kind, id, name)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.committing = false
	if err != nil {
		return err
	}
	if e.kind == kind && e.id == id {
		e.resetLocked()
	}
	return nil
}

// Cancel discards the draft and returns to Viewing.
func (e *RenameEditor) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.committing {
		return
	}
	e.resetLocked()
}

func (e *RenameEditor) resetLocked() {
	e.mode = EditorViewing
	e.kind = ""
	e.id = ""
	e.original = ""
	e.draft = ""
}
