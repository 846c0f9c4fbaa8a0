package router_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mindcare/internal/platform/config"
	"mindcare/internal/router"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	h, err := router.NewRouter(router.Options{
		Config: config.Config{InviteBaseURL: "https://app.clinic.test/register"},
	})
	if err != nil {
		t.Fatalf("NewRouter error: %v", err)
	}
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts
}

func doReq(t *testing.T, baseURL, method, path string, headers map[string]string, body any) (int, []byte) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, baseURL+path, buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw
}

func adminHeaders() map[string]string {
	return map[string]string{
		"X-Debug-User-ID": "admin-1",
		"X-Debug-Email":   "admin@clinic.test",
		"X-Debug-Role":    "ADMIN",
	}
}

func therapistHeaders(uid string) map[string]string {
	return map[string]string{
		"X-Debug-User-ID":   uid,
		"X-Debug-Email":     uid + "@clinic.test",
		"X-Debug-Role":      "THERAPIST",
		"X-Debug-Tenant-ID": "tenant_" + uid,
		"X-Debug-Verified":  "true",
	}
}

func TestHTTP_EndToEnd_InvitationLifecycle(t *testing.T) {
	ts := newTestServer(t)

	// 0) health
	{
		st, _ := doReq(t, ts.URL, "GET", "/health", nil, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 health, got %d", st)
		}
	}

	// 1) Admin crea un terapeuta directo (destino del transfer).
	var therapistA string
	{
		st, body := doReq(t, ts.URL, "POST", "/admin/therapists", adminHeaders(), map[string]any{
			"email":        "vega@clinic.test",
			"password":     "secret123",
			"display_name": "Dra. Vega",
			"cedula":       "11111111",
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 create therapist, got %d body=%s", st, body)
		}
		var out map[string]string
		_ = json.Unmarshal(body, &out)
		therapistA = out["therapist_id"]
		if therapistA == "" {
			t.Fatalf("missing therapist_id in %s", body)
		}
	}

	// 2) Admin invita a un segundo terapeuta, con prefill.
	var therapistToken string
	{
		st, body := doReq(t, ts.URL, "POST", "/invitations", adminHeaders(), map[string]any{
			"role":         "therapist",
			"target_email": "luna@clinic.test",
			"target_name":  "Dra. Luna",
			"therapist_data": map[string]any{
				"cedula": "22222222",
			},
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 issue invitation, got %d body=%s", st, body)
		}
		var out map[string]any
		_ = json.Unmarshal(body, &out)
		therapistToken, _ = out["token"].(string)
		url, _ := out["invitation_url"].(string)
		if therapistToken == "" || !strings.Contains(url, "?invite="+therapistToken) {
			t.Fatalf("bad issue response: %s", body)
		}
	}

	// 3) Preview público del token.
	{
		st, body := doReq(t, ts.URL, "GET", "/invitations/"+therapistToken, nil, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 validate, got %d body=%s", st, body)
		}
		var out map[string]any
		_ = json.Unmarshal(body, &out)
		if out["role"] != "THERAPIST" {
			t.Fatalf("expected THERAPIST preview, got %s", body)
		}
	}

	// 4) Registro por invitación (sin cédula: usa el prefill).
	var therapistB string
	{
		st, body := doReq(t, ts.URL, "POST", "/signup/therapists", nil, map[string]any{
			"token":        therapistToken,
			"display_name": "Dra. Luna",
			"password":     "secret123",
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 signup therapist, got %d body=%s", st, body)
		}
		var out map[string]string
		_ = json.Unmarshal(body, &out)
		therapistB = out["therapist_id"]
		if therapistB == "" {
			t.Fatalf("missing therapist_id in %s", body)
		}
	}

	// 5) El token de terapeuta quedó consumido.
	{
		st, _ := doReq(t, ts.URL, "GET", "/invitations/"+therapistToken, nil, nil)
		if st != http.StatusConflict {
			t.Fatalf("expected 409 for used token, got %d", st)
		}
	}

	// 6) Terapeuta B invita a un paciente a su tenant.
	var patientToken string
	{
		st, body := doReq(t, ts.URL, "POST", "/invitations/patients", therapistHeaders(therapistB), map[string]any{
			"patient_email": "pac@clinic.test",
			"patient_name":  "Pac Uno",
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 patient invitation, got %d body=%s", st, body)
		}
		var out map[string]any
		_ = json.Unmarshal(body, &out)
		patientToken, _ = out["token"].(string)
		if patientToken == "" {
			t.Fatalf("missing token in %s", body)
		}
	}

	// 7) El emisor ve su invitación pendiente.
	{
		st, body := doReq(t, ts.URL, "GET", "/me/invitations", therapistHeaders(therapistB), nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 my invitations, got %d body=%s", st, body)
		}
		var out []map[string]any
		_ = json.Unmarshal(body, &out)
		if len(out) != 1 || out[0]["status"] != "pending" {
			t.Fatalf("expected one pending invitation, got %s", body)
		}
	}

	// 8) El paciente canjea.
	var patientID string
	{
		st, body := doReq(t, ts.URL, "POST", "/signup/patients", nil, map[string]any{
			"token":        patientToken,
			"display_name": "Pac Uno",
			"password":     "secret123",
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 signup patient, got %d body=%s", st, body)
		}
		var out map[string]string
		_ = json.Unmarshal(body, &out)
		patientID = out["patient_id"]
		if patientID == "" {
			t.Fatalf("missing patient_id in %s", body)
		}
	}

	// 9) Un segundo canje del mismo token rebota.
	{
		st, _ := doReq(t, ts.URL, "POST", "/signup/patients", nil, map[string]any{
			"token":        patientToken,
			"display_name": "Impostor",
			"password":     "secret123",
		})
		if st != http.StatusConflict {
			t.Fatalf("expected 409 on token reuse, got %d", st)
		}
	}

	// 10) La relación quedó activa con B.
	{
		st, body := doReq(t, ts.URL, "GET", "/patients/"+patientID+"/relationships", therapistHeaders(therapistB), nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 relationships, got %d body=%s", st, body)
		}
		var out []map[string]any
		_ = json.Unmarshal(body, &out)
		if len(out) != 1 || out[0]["therapist_id"] != therapistB || out[0]["status"] != "active" {
			t.Fatalf("expected one active relationship with %s, got %s", therapistB, body)
		}
	}

	// 11) B transfiere el paciente a A.
	{
		st, body := doReq(t, ts.URL, "POST", "/patients/"+patientID+"/transfer", therapistHeaders(therapistB), map[string]any{
			"old_therapist_id": therapistB,
			"new_therapist_id": therapistA,
		})
		if st != http.StatusOK {
			t.Fatalf("expected 200 transfer, got %d body=%s", st, body)
		}
	}

	// 12) Queda una activa con A y la de B cerrada.
	{
		st, body := doReq(t, ts.URL, "GET", "/patients/"+patientID+"/relationships", adminHeaders(), nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 relationships, got %d body=%s", st, body)
		}
		var out []map[string]any
		_ = json.Unmarshal(body, &out)
		if len(out) != 2 {
			t.Fatalf("expected 2 relationships after transfer, got %s", body)
		}
		statusByTherapist := map[string]string{}
		for _, rel := range out {
			statusByTherapist[rel["therapist_id"].(string)] = rel["status"].(string)
		}
		if statusByTherapist[therapistA] != "active" || statusByTherapist[therapistB] != "inactive" {
			t.Fatalf("unexpected statuses after transfer: %s", body)
		}
	}

	// 13) Un extraño no puede transferir.
	{
		st, _ := doReq(t, ts.URL, "POST", "/patients/"+patientID+"/transfer", therapistHeaders("intruso"), map[string]any{
			"old_therapist_id": therapistA,
			"new_therapist_id": therapistB,
		})
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 transfer by stranger, got %d", st)
		}
	}
}

func TestHTTP_InvitationCancel(t *testing.T) {
	ts := newTestServer(t)

	var token string
	{
		st, body := doReq(t, ts.URL, "POST", "/invitations/patients", therapistHeaders("t-1"), map[string]any{
			"patient_email": "pac@clinic.test",
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 issue, got %d body=%s", st, body)
		}
		var out map[string]any
		_ = json.Unmarshal(body, &out)
		token, _ = out["token"].(string)
	}

	// Otro terapeuta no puede cancelarla.
	{
		st, _ := doReq(t, ts.URL, "POST", "/invitations/"+token+"/cancel", therapistHeaders("t-2"), nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 cancel by stranger, got %d", st)
		}
	}

	// El emisor sí.
	{
		st, body := doReq(t, ts.URL, "POST", "/invitations/"+token+"/cancel", therapistHeaders("t-1"), nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 cancel, got %d body=%s", st, body)
		}
		var out map[string]any
		_ = json.Unmarshal(body, &out)
		if out["status"] != "cancelled" {
			t.Fatalf("expected cancelled, got %s", body)
		}
	}

	// El preview reporta el estado.
	{
		st, _ := doReq(t, ts.URL, "GET", "/invitations/"+token, nil, nil)
		if st != http.StatusConflict {
			t.Fatalf("expected 409 validating cancelled token, got %d", st)
		}
	}
}
