package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"bookvault/internal/app"
	"bookvault/internal/store"
	"bookvault/internal/sweeper"
	"bookvault/pkg/domain"
)

func newTestServer(t *testing.T) (*Server, *app.App) {
	t.Helper()
	engine, err := app.New(app.Config{Store: store.NewMemoryStore()})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv, err := New(Config{
		App:    engine,
		Sweeps: sweeper.New(engine, time.Hour, 0),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv, engine
}

func doRequest(t *testing.T, srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func asUser(id string) map[string]string {
	return map[string]string{
		"X-User-Id":    id,
		"X-User-Name":  "Some Student",
		"X-User-Email": id + "@example.com",
	}
}

func asAdmin() map[string]string {
	return map[string]string{
		"X-User-Id":   "admin-1",
		"X-User-Name": "The Admin",
		"X-User-Role": "admin",
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func createBook(t *testing.T, srv *Server, title string, copies int) domain.Book {
	t.Helper()
	rec := doRequest(t, srv, http.MethodPost, "/api/books",
		`{"title":"`+title+`","author":"An Author","totalCopies":`+strconv.Itoa(copies)+`}`, asAdmin())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create book status = %d body=%s", rec.Code, rec.Body.String())
	}
	var book domain.Book
	decodeBody(t, rec, &book)
	return book
}

func TestRequiresIdentityHeaders(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/books", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAdminRoutesRejectStudents(t *testing.T) {
	srv, _ := newTestServer(t)
	cases := []struct{ method, path string }{
		{http.MethodPost, "/api/books"},
		{http.MethodGet, "/api/borrow/pending"},
		{http.MethodPost, "/api/borrow/approve/some-id"},
		{http.MethodPost, "/api/borrow/reject/some-id"},
		{http.MethodGet, "/api/borrow/all"},
		{http.MethodGet, "/api/settings"},
		{http.MethodPost, "/api/admin/sweep"},
		{http.MethodGet, "/api/admin/stats"},
	}
	for _, tc := range cases {
		rec := doRequest(t, srv, tc.method, tc.path, "{}", asUser("student-1"))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s %s status = %d, want 403", tc.method, tc.path, rec.Code)
		}
	}
}

func TestBorrowLifecycleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	book := createBook(t, srv, "Dune", 1)

	rec := doRequest(t, srv, http.MethodPost, "/api/borrow/request/"+book.ID, "", asUser("student-1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("request status = %d body=%s", rec.Code, rec.Body.String())
	}
	var created domain.BorrowRecord
	decodeBody(t, rec, &created)
	if created.Status != domain.StatusPending {
		t.Fatalf("created status = %s, want pending", created.Status)
	}

	// Duplicate request conflicts.
	rec = doRequest(t, srv, http.MethodPost, "/api/borrow/request/"+book.ID, "", asUser("student-1"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate request status = %d, want 409", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/borrow/pending", "", asAdmin())
	if rec.Code != http.StatusOK {
		t.Fatalf("pending status = %d", rec.Code)
	}
	var pending []domain.BorrowView
	decodeBody(t, rec, &pending)
	if len(pending) != 1 {
		t.Fatalf("pending len = %d, want 1", len(pending))
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/borrow/approve/"+created.ID, "", asAdmin())
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d body=%s", rec.Code, rec.Body.String())
	}
	var approved domain.BorrowView
	decodeBody(t, rec, &approved)
	if approved.Status != domain.StatusBorrowed || approved.DueDate == nil {
		t.Fatalf("approved = %+v", approved.BorrowRecord)
	}

	// Approving again is an invalid transition.
	rec = doRequest(t, srv, http.MethodPost, "/api/borrow/approve/"+created.ID, "", asAdmin())
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("double approve status = %d, want 422", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/borrow/return/"+created.ID, "", asUser("student-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("return status = %d body=%s", rec.Code, rec.Body.String())
	}
	var returned struct {
		Record domain.BorrowRecord `json:"record"`
		Fine   int64               `json:"fine"`
	}
	decodeBody(t, rec, &returned)
	if returned.Record.Status != domain.StatusReturned || returned.Fine != 0 {
		t.Fatalf("returned = %+v fine=%d", returned.Record, returned.Fine)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/borrow/return/"+created.ID, "", asUser("student-1"))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("double return status = %d, want 422", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/borrow/my", "", asUser("student-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("my status = %d", rec.Code)
	}
	var mine []domain.BorrowView
	decodeBody(t, rec, &mine)
	if len(mine) != 1 || mine[0].Status != domain.StatusReturned {
		t.Fatalf("my = %+v", mine)
	}
}

func TestRequestBorrowUnknownBook(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/borrow/request/nope", "", asUser("student-1"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestApproveWithoutCopiesConflicts(t *testing.T) {
	srv, _ := newTestServer(t)
	book := createBook(t, srv, "Dune", 1)

	var ids []string
	for _, user := range []string{"student-1", "student-2"} {
		rec := doRequest(t, srv, http.MethodPost, "/api/borrow/request/"+book.ID, "", asUser(user))
		if rec.Code != http.StatusCreated {
			t.Fatalf("request status = %d", rec.Code)
		}
		var created domain.BorrowRecord
		decodeBody(t, rec, &created)
		ids = append(ids, created.ID)
	}
	if rec := doRequest(t, srv, http.MethodPost, "/api/borrow/approve/"+ids[0], "", asAdmin()); rec.Code != http.StatusOK {
		t.Fatalf("first approve status = %d", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodPost, "/api/borrow/approve/"+ids[1], "", asAdmin()); rec.Code != http.StatusConflict {
		t.Fatalf("second approve status = %d, want 409", rec.Code)
	}
}

func TestListAllPaginationEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)
	book := createBook(t, srv, "Dune", 5)
	for _, user := range []string{"student-1", "student-2", "student-3"} {
		if rec := doRequest(t, srv, http.MethodPost, "/api/borrow/request/"+book.ID, "", asUser(user)); rec.Code != http.StatusCreated {
			t.Fatalf("request status = %d", rec.Code)
		}
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/borrow/all?status=pending&limit=2&page=2", "", asAdmin())
	if rec.Code != http.StatusOK {
		t.Fatalf("list all status = %d", rec.Code)
	}
	var page app.PagedBorrows
	decodeBody(t, rec, &page)
	if page.Total != 3 || page.TotalPages != 2 || page.Page != 2 || len(page.Data) != 1 {
		t.Fatalf("page = %+v", page)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/borrow/all?status=bogus", "", asAdmin())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus status filter = %d, want 400", rec.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/settings", "", asAdmin())
	if rec.Code != http.StatusOK {
		t.Fatalf("get settings status = %d", rec.Code)
	}
	var settings domain.Settings
	decodeBody(t, rec, &settings)
	if settings.FinePerDay != 10 {
		t.Fatalf("default finePerDay = %d, want 10", settings.FinePerDay)
	}

	rec = doRequest(t, srv, http.MethodPut, "/api/settings",
		`{"maxBooksPerUser":5,"loanPeriodDays":21,"finePerDay":15}`, asAdmin())
	if rec.Code != http.StatusOK {
		t.Fatalf("put settings status = %d body=%s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &settings)
	if settings.MaxBooksPerUser != 5 || settings.LoanPeriodDays != 21 || settings.FinePerDay != 15 {
		t.Fatalf("saved settings = %+v", settings)
	}

	rec = doRequest(t, srv, http.MethodPut, "/api/settings", `{"maxBooksPerUser":0}`, asAdmin())
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid settings status = %d, want 422", rec.Code)
	}
}

func TestManualSweepEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/admin/sweep", "", asAdmin())
	if rec.Code != http.StatusOK {
		t.Fatalf("sweep status = %d body=%s", rec.Code, rec.Body.String())
	}
	var result app.SweepResult
	decodeBody(t, rec, &result)
	if result.Processed != 0 {
		t.Fatalf("processed = %d, want 0 on empty ledger", result.Processed)
	}
}

// stalledSweepStore parks the overdue scan until released, holding a
// sweep in flight.
type stalledSweepStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
}

func (s *stalledSweepStore) ListOverdue(asOf time.Time) ([]domain.BorrowRecord, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return s.Store.ListOverdue(asOf)
}

func TestManualSweepEndpointConflictsWhileRunning(t *testing.T) {
	stalled := &stalledSweepStore{
		Store:   store.NewMemoryStore(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	engine, err := app.New(app.Config{Store: stalled})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv, err := New(Config{App: engine, Sweeps: sweeper.New(engine, time.Hour, 0)})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	firstCode := make(chan int, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/sweep", strings.NewReader(""))
		for k, v := range asAdmin() {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		firstCode <- rec.Code
	}()
	<-stalled.entered

	rec := doRequest(t, srv, http.MethodPost, "/api/admin/sweep", "", asAdmin())
	if rec.Code != http.StatusConflict {
		t.Fatalf("overlapping sweep status = %d, want 409", rec.Code)
	}

	close(stalled.release)
	if code := <-firstCode; code != http.StatusOK {
		t.Fatalf("held sweep status = %d, want 200", code)
	}
}

func TestAdminStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	book := createBook(t, srv, "Dune", 2)
	rec := doRequest(t, srv, http.MethodPost, "/api/borrow/request/"+book.ID, "", asUser("student-1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("request status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/admin/stats", "", asAdmin())
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d body=%s", rec.Code, rec.Body.String())
	}
	var stats app.Stats
	decodeBody(t, rec, &stats)
	if stats.TotalBooks != 1 || stats.PendingRequests != 1 || stats.CurrentlyBorrowed != 0 || stats.TotalFines != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestWaitlistJoinOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	book := createBook(t, srv, "Dune", 1)
	rec := doRequest(t, srv, http.MethodPost, "/api/books/"+book.ID+"/waitlist", "", asUser("student-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("waitlist status = %d body=%s", rec.Code, rec.Body.String())
	}
	var updated domain.Book
	decodeBody(t, rec, &updated)
	if len(updated.Waitlist) != 1 || updated.Waitlist[0] != "student-1@example.com" {
		t.Fatalf("waitlist = %v", updated.Waitlist)
	}
}

func TestBookCRUDOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	book := createBook(t, srv, "Dune", 2)

	rec := doRequest(t, srv, http.MethodGet, "/api/books?q=dun", "", asUser("student-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var books []domain.Book
	decodeBody(t, rec, &books)
	if len(books) != 1 {
		t.Fatalf("list len = %d, want 1", len(books))
	}

	rec = doRequest(t, srv, http.MethodPut, "/api/books/"+book.ID, `{"totalCopies":5}`, asAdmin())
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d body=%s", rec.Code, rec.Body.String())
	}
	var updated domain.Book
	decodeBody(t, rec, &updated)
	if updated.TotalCopies != 5 || updated.AvailableCopies != 5 {
		t.Fatalf("updated = %+v", updated)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/books/"+book.ID, "", asAdmin())
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/api/books/"+book.ID, "", asUser("student-1"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted status = %d, want 404", rec.Code)
	}
}
