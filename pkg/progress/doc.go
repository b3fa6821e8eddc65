// Package progress tracks completed downloads against the expected total.
//
// The total is unknown when a run starts and is learned at most once from
// the page manifest. Until then the tracker counts without a bound. Once the
// total is known the completed count never passes it; an extra completion
// is logged and dropped. Display is delegated to a Renderer.
package progress
