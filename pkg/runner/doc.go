// Package runner drives one grab of a single target page.
//
// A run moves through a fixed sequence of states:
//
//	Idle -> BootstrappingSession -> NavigatingPrimaryPage ->
//	DiscoveringAndDownloading -> Draining -> Done | Failed
//
// The session bootstrap passes the site's bot challenge in a visible browser
// and persists the resulting cookies. The page session then loads the target
// headlessly while a manifest observer and an asset discoverer watch its
// network responses. Every new asset is handed to the download orchestrator,
// whose completions advance the progress tracker. The run only starts
// draining once scrolling has stopped producing new assets and the page's
// network has gone idle.
//
// Only bootstrap and primary navigation failures fail a run. Everything that
// goes wrong with a single asset stays inside that asset's retry loop.
package runner
