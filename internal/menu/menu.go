// Package menu runs the interactive text menu for browsing and enriching
// postal codes, either over the HTTP API or directly against a store.
package menu

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/postal-cli/internal/model"
)

// ErrNotFound is returned by a Backend when the postal code is unknown.
var ErrNotFound = eris.New("postal code not found")

// errInputClosed ends the session when input runs out mid-prompt.
var errInputClosed = eris.New("menu: input closed")

// Backend is what the menu operates on.
type Backend interface {
	ListAll(ctx context.Context) ([]model.PostalRecord, error)
	Get(ctx context.Context, code string) (*model.PostalRecord, error)
	// Update enriches incomplete records and returns a summary line.
	Update(ctx context.Context, apiKey string) (string, error)
}

// Importer is implemented by backends that can seed the store from a file.
type Importer interface {
	ImportFile(ctx context.Context, apiKey, path string) (string, error)
}

// Menu is one interactive session.
type Menu struct {
	Backend Backend
	In      io.Reader
	Out     io.Writer
	// APIKey, when set, is used for updates and imports instead of prompting.
	APIKey string
}

type option struct {
	label string
	run   func(ctx context.Context, in *bufio.Scanner) error
}

// Run shows the menu until the user exits or input ends.
func (m *Menu) Run(ctx context.Context) error {
	in := bufio.NewScanner(m.In)
	opts := m.options()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		m.printMenu(opts)
		choice, ok := m.prompt(in, fmt.Sprintf("Choose an option (1-%d): ", len(opts)+1))
		if !ok {
			m.println("")
			return in.Err()
		}

		if choice == fmt.Sprint(len(opts)+1) {
			m.println("Exiting the program.")
			return nil
		}

		idx := -1
		for i := range opts {
			if choice == fmt.Sprint(i+1) {
				idx = i
				break
			}
		}
		if idx < 0 {
			m.println("Invalid option. Please choose a valid menu option.")
			continue
		}

		if err := opts[idx].run(ctx, in); err != nil {
			if errors.Is(err, errInputClosed) {
				m.println("")
				return nil
			}
			m.printf("Error: %v\n", err)
		}
	}
}

func (m *Menu) options() []option {
	opts := []option{
		{label: "View All Postal Code Data", run: m.viewAll},
		{label: "Search for a Postal Code", run: m.search},
		{label: "Update Missing Data (Request from External API)", run: m.update},
	}
	if _, ok := m.Backend.(Importer); ok {
		opts = append(opts, option{label: "Import Postal Codes from File", run: m.importFile})
	}
	return opts
}

func (m *Menu) printMenu(opts []option) {
	m.println("")
	for i, o := range opts {
		m.printf("%d. %s\n", i+1, o.label)
	}
	m.printf("%d. Exit\n", len(opts)+1)
}

func (m *Menu) viewAll(ctx context.Context, _ *bufio.Scanner) error {
	recs, err := m.Backend.ListAll(ctx)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		m.println("No data found.")
		return nil
	}
	for _, rec := range recs {
		m.printRecord(rec)
	}
	return nil
}

func (m *Menu) search(ctx context.Context, in *bufio.Scanner) error {
	code, ok := m.prompt(in, "Enter the postal code to search (format: xxxx-xxx): ")
	if !ok {
		return errInputClosed
	}
	if !model.ValidPostalCode(code) {
		m.println("Invalid postal code format. Use xxxx-xxx.")
		return nil
	}

	rec, err := m.Backend.Get(ctx, code)
	if errors.Is(err, ErrNotFound) {
		m.println("Postal code not found.")
		return nil
	}
	if err != nil {
		return err
	}
	m.printRecord(*rec)
	return nil
}

func (m *Menu) update(ctx context.Context, in *bufio.Scanner) error {
	apiKey, err := m.apiKey(in)
	if err != nil {
		return err
	}
	msg, err := m.Backend.Update(ctx, apiKey)
	if err != nil {
		return err
	}
	m.println(msg)
	return nil
}

func (m *Menu) importFile(ctx context.Context, in *bufio.Scanner) error {
	imp, ok := m.Backend.(Importer)
	if !ok {
		return eris.New("menu: backend cannot import")
	}
	path, ok := m.prompt(in, "Enter the path of the CSV or XLSX file to import: ")
	if !ok {
		return errInputClosed
	}
	if path == "" {
		m.println("No file given.")
		return nil
	}
	apiKey, err := m.apiKey(in)
	if err != nil {
		return err
	}
	msg, err := imp.ImportFile(ctx, apiKey, path)
	if err != nil {
		return err
	}
	m.println(msg)
	return nil
}

func (m *Menu) apiKey(in *bufio.Scanner) (string, error) {
	if m.APIKey != "" {
		return m.APIKey, nil
	}
	key, ok := m.prompt(in, "Enter the API key to fetch data: ")
	if !ok {
		return "", errInputClosed
	}
	return key, nil
}

func (m *Menu) prompt(in *bufio.Scanner, label string) (string, bool) {
	m.printf("%s", label)
	if !in.Scan() {
		return "", false
	}
	return strings.TrimSpace(in.Text()), true
}

func (m *Menu) printRecord(rec model.PostalRecord) {
	m.printf("Postal Code: %s, Concelho: %s, Distrito: %s\n", rec.PostalCode, rec.Concelho, rec.Distrito)
}

func (m *Menu) println(s string) {
	fmt.Fprintln(m.Out, s) //nolint:errcheck
}

func (m *Menu) printf(format string, args ...any) {
	fmt.Fprintf(m.Out, format, args...) //nolint:errcheck
}
