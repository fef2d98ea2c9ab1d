package domain

// domain package contains the Domain Models and Interfaces for the Pickfab application.
//
// `domain/pickfab` package exposes the root object for the Pickfab application.
// Entrypoints of applications should instantiate the Pickfab object and use it to interact with the domain.
//
// `domain/ENTITY.go` has high-level entities (Domain Model types) and functions.
// For example, `domain/project.go` contains the `Project` entity.
//
// `domain/ENTITY` directory contains the "physical" representation of the domain entities
// (the RDB) or the clients talking to external collaborators.
// For example, `domain/project/db` contains the database expression of the project entity
// described in `domain/project.go`.
//
// # Entities
//
// Core entities in the domain are:
//
// - `project`: One active-learning run. A Project owns its label schema, batch size,
// uncertainty strategy, current epoch and the set of already-annotated items.
// Its Status field is the state machine of the loop:
// deactivated -> idle -> dispatched -> training -> (idle | finished | stalled).
// The "dispatching loop" picks idle projects and sends the next batch to the annotation
// tool, the "collecting loop" (or the inbound webhook) pulls completed annotations and
// triggers retraining, and the "training loop" watches the ML backend until it is idle again.
//
// - `scoring` / `selection`: the pure math of the loop. `scoring` maps a per-class
// probability vector to an urgency value under the project's strategy, and `selection`
// narrows scored candidates to a bounded, deterministic batch.
//
// - `epoch`: the state machine transitions themselves. `epoch.Machine` produces
// ProjectChange records from collaborator calls; `epoch.Controller` is the external
// seam receiving "start" and "batch complete" events.
//
// And others:
//
// - `annotation`: client contract for the remote annotation tool, with one concrete
// adapter per backing tool (currently Label-Studio-style HTTP).
//
// - `model`: client contract for the ML backend (predict/train/status), plus the
// persisted model-status manager backing cmd/modeld.
//
// - `storage`: enumerates and reads the unlabeled items of a run.
//
// - `garbage`: retired remote annotation projects awaiting deletion on the tool
// (occur in "housekeeping loop").
//
// - `keychain`: manages signkeys for JWT, stored in the database. This is used to
// verify inbound annotation-tool webhooks.
//
// - `loop`: defines constants for each recurring loop.
// Implementation of the loop is in `cmd/loops/tasks/` directory.
//
