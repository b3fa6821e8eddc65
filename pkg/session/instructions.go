package session

import (
	"fmt"
	"io"
	"strings"
	"time"

	"pagegrab/pkg/ui"
)

// ShowChallengeGuide tells the operator to clear the bot check by hand
func ShowChallengeGuide(w io.Writer, targetURL string, perWait time.Duration, maxWaits int) {
	if w == nil {
		return
	}
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, ui.Yellow("The site is showing a bot check."))
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  1. Switch to the browser window that just opened on %s\n", ui.Cyan(targetURL))
	fmt.Fprintln(w, "  2. Complete the check (tick the box or solve the puzzle)")
	fmt.Fprintln(w, "  3. Leave the window open; it closes by itself once the page loads")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Waiting up to %s, checking every %s.\n",
		ui.Dim((perWait * time.Duration(maxWaits)).String()), ui.Dim(perWait.String()))
	fmt.Fprintln(w, "  Cookies are saved afterwards so the next run can skip this step.")
	fmt.Fprintln(w)
}
