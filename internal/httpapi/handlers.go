package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oursql/oursql/internal/errs"
	"github.com/oursql/oursql/internal/sql/parser"
	"github.com/oursql/oursql/internal/table"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// queryRequest is the POST /query body.
type queryRequest struct {
	SQL string `json:"sql"`
}

// queryResponse is the POST /query response: Rows/Columns for SELECT,
// Message for everything else.
type queryResponse struct {
	Columns  []string `json:"columns,omitempty"`
	Rows     [][]any  `json:"rows,omitempty"`
	RowCount int      `json:"row_count"`
	Message  string   `json:"message,omitempty"`
}

func valueToAny(v table.Value) any {
	if v.IsText {
		return v.Text
	}
	return v.Integer
}

// handleQuery executes one SQL statement through the same Executor the
// REPL uses.
//
// POST /query {"sql": "..."}
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.KindParseError, "invalid JSON body: %v", err))
		return
	}
	if req.SQL == "" {
		writeError(w, errs.New(errs.KindParseError, "sql field is required"))
		return
	}

	stmt, err := parser.Parse(req.SQL)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.exec.Execute(stmt)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := queryResponse{RowCount: result.RowCount, Message: result.Message}
	if len(result.Columns) > 0 {
		resp.Columns = result.Columns
		resp.Rows = make([][]any, len(result.Rows))
		for i, row := range result.Rows {
			resp.Rows[i] = make([]any, len(row))
			for j, val := range row {
				resp.Rows[i][j] = valueToAny(val)
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListTables lists every table registered in the catalog.
//
// GET /tables
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Tables []string `json:"tables"`
	}{Tables: s.db.ListTables()})
}

type columnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// handleTableSchema returns a table's column list, in schema order.
//
// GET /tables/{name}/schema
func (s *Server) handleTableSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tbl, err := s.db.GetTable(name)
	if err != nil {
		writeError(w, err)
		return
	}

	columns := make([]columnInfo, len(tbl.Schema.Columns))
	for i, c := range tbl.Schema.Columns {
		columns[i] = columnInfo{Name: c.Name, Type: c.Type.String()}
	}
	writeJSON(w, http.StatusOK, struct {
		Name    string       `json:"name"`
		Columns []columnInfo `json:"columns"`
	}{Name: name, Columns: columns})
}
