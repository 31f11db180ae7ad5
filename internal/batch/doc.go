/*
Package batch runs a per-item operation over every catalog item that still
needs it.

A Driver pages through the unprocessed-item finder, classifies each item,
invokes the Operation, records the outcome in the processing-state ledger,
and reports progress to an Emitter. One Driver serves every operation type;
the Operation supplies the per-item work and the categories it accepts.

# Run Lifecycle

	IDLE -> FETCHING_PAGE -> PROCESSING_ITEM -> ... -> DRAINED | ABORTED | FAILED

Each run emits a started event, processing events per item (optionally
throttled by Options.FrameRate), a summary every Options.ProgressEvery items,
batch_complete after each page, and exactly one terminal event: complete,
aborted or error.

The finder only returns rows written before the run started, so an item is
handled at most once per run. The driver also stops if a page contains only
items it has already seen.

# Eligibility

Before the operation runs, items are checked in this order:

 1. unresolvable file type: ledger error "Unsupported file type"
 2. ignored file type: skipped "Ignored file type"
 3. category not accepted by the operation: skipped "Unsupported category: <c>"
 4. SkipLargeFiles and size above the threshold: skipped "Large file (over N MB)"

Ineligible items count as skipped in progress counters.

# Cancellation

The AbortSignal is polled before every fetch and every item. Once it fires,
the current item is recorded as aborted and the run ends. Ledger writes use
a context detached from the request so that the abort itself is recorded
after the client has gone.
*/
package batch
