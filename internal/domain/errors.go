package domain

import "errors"

// Error message string constants - single source of truth for error messages.
// Use these in assert.Contains() checks when testing error messages.
const (
	// Node / session errors
	ErrMsgNodeNotFound      = "node not found"
	ErrMsgNotHarvestable    = "node is not harvestable"
	ErrMsgNodeOnCooldown    = "node is on cooldown"
	ErrMsgNodeClaimed       = "node is already being harvested"
	ErrMsgMissingInput      = "missing required item"
	ErrMsgAmbiguousTarget   = "ambiguous target"
	ErrMsgPlayerWinded      = "too winded to harvest"
	ErrMsgTemplateNotFound  = "node template not found"
	ErrMsgNoActiveSession   = "no active session"

	// Player errors
	ErrMsgPlayerNotFound = "player not found"

	// Inventory errors
	ErrMsgInsufficientQuantity = "insufficient quantity"
	ErrMsgInventoryFull        = "inventory is full"
	ErrMsgInvalidHolder        = "invalid holder"

	// Movement errors
	ErrMsgNoSuchExit     = "no such exit"
	ErrMsgMoveOnCooldown = "moving too fast"
	ErrMsgRoomNotFound   = "room not found"
)

// Common domain errors.
// These errors should be used consistently across all layers.
// Wrap with fmt.Errorf("%w: %s", domain.ErrXxx, details) for context.
var (
	// Node / session errors
	ErrNodeNotFound     = errors.New(ErrMsgNodeNotFound)
	ErrNotHarvestable   = errors.New(ErrMsgNotHarvestable)
	ErrNodeOnCooldown   = errors.New(ErrMsgNodeOnCooldown)
	ErrNodeClaimed      = errors.New(ErrMsgNodeClaimed)
	ErrMissingInput     = errors.New(ErrMsgMissingInput)
	ErrAmbiguousTarget  = errors.New(ErrMsgAmbiguousTarget)
	ErrPlayerWinded     = errors.New(ErrMsgPlayerWinded)
	ErrTemplateNotFound = errors.New(ErrMsgTemplateNotFound)
	ErrNoActiveSession  = errors.New(ErrMsgNoActiveSession)

	// Player errors
	ErrPlayerNotFound = errors.New(ErrMsgPlayerNotFound)

	// Inventory errors
	ErrInsufficientQuantity = errors.New(ErrMsgInsufficientQuantity)
	ErrInventoryFull        = errors.New(ErrMsgInventoryFull)
	ErrInvalidHolder        = errors.New(ErrMsgInvalidHolder)

	// Movement errors
	ErrNoSuchExit     = errors.New(ErrMsgNoSuchExit)
	ErrMoveOnCooldown = errors.New(ErrMsgMoveOnCooldown)
	ErrRoomNotFound   = errors.New(ErrMsgRoomNotFound)
)
