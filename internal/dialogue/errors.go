package dialogue

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/whizzbang/audience-builder/internal/catalog"
	"github.com/whizzbang/audience-builder/internal/llm"
)

var (
	// ErrExtractionParse indicates the text collaborator's structured output
	// could not be parsed. Recovered locally: the user is re-prompted, the
	// node is unchanged, and no slot data is lost.
	ErrExtractionParse = errors.New("dialogue: extraction output unparsable")

	// ErrCatalogNotFound indicates the lookup matched no usable records.
	// Surfaced as an apology; the session transitions to terminal.
	ErrCatalogNotFound = errors.New("dialogue: catalog lookup found nothing")

	// ErrCollaboratorTimeout indicates a bounded collaborator call expired.
	// Recovered like a parse failure for the text collaborator, like a
	// not-found for the catalog collaborator.
	ErrCollaboratorTimeout = errors.New("dialogue: collaborator call timed out")

	// ErrTerminalStep indicates an attempt to step the absorbing node.
	ErrTerminalStep = errors.New("dialogue: machine is terminal")
)

// classify maps collaborator errors onto the dialogue taxonomy. Anything it
// does not recognize is returned unchanged and closes the session upstream.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case isTimeout(err):
		return fmt.Errorf("%w: %v", ErrCollaboratorTimeout, err)
	case errors.Is(err, llm.ErrMalformedOutput):
		return fmt.Errorf("%w: %v", ErrExtractionParse, err)
	case errors.Is(err, catalog.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
	default:
		return err
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// recoverableText reports whether a text-collaborator failure should keep
// the machine in its node with a re-prompt rather than closing the session.
func recoverableText(err error) bool {
	return errors.Is(err, ErrExtractionParse) || errors.Is(err, ErrCollaboratorTimeout)
}

// recoverableCatalog reports whether a catalog failure should end the
// conversation with an apology rather than closing the session abnormally.
func recoverableCatalog(err error) bool {
	return errors.Is(err, ErrCatalogNotFound) || errors.Is(err, ErrCollaboratorTimeout)
}
