package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const sampleDump = `instrument_token,exchange_token,tradingsymbol,name,last_price,expiry,strike,tick_size,lot_size,instrument_type,segment,exchange
256265,1001,NIFTY 50,NIFTY 50,0,,0,0.05,1,EQ,INDICES,NSE
9604354,37517,NIFTY26JAN17500CE,NIFTY,0,2026-01-29,17500,0.05,50,CE,NFO-OPT,NFO
9604610,37518,NIFTY26JAN17500PE,NIFTY,0,2026-01-29,17500,0.05,50,PE,NFO-OPT,NFO
notanumber,37519,BROKEN,NIFTY,0,2026-01-29,17500,0.05,50,CE,NFO-OPT,NFO
`

func TestClient_Instruments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Kite-Version"); got != "3" {
			t.Errorf("X-Kite-Version = %q, want 3", got)
		}
		if got := r.Header.Get("Authorization"); got != "token key123" {
			t.Errorf("Authorization = %q, want token key123", got)
		}
		w.Write([]byte(sampleDump))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key123", WithTimeout(2*time.Second))

	instruments, err := c.Instruments(context.Background())
	if err != nil {
		t.Fatalf("Instruments failed: %v", err)
	}

	// The row with a malformed token is skipped.
	if len(instruments) != 3 {
		t.Fatalf("len(instruments) = %d, want 3", len(instruments))
	}

	spot := instruments[0]
	if spot.InstrumentToken != 256265 {
		t.Errorf("InstrumentToken = %d, want 256265", spot.InstrumentToken)
	}
	if spot.TradingSymbol != "NIFTY 50" {
		t.Errorf("TradingSymbol = %q, want NIFTY 50", spot.TradingSymbol)
	}

	call := instruments[1]
	if call.Strike != 17500 {
		t.Errorf("Strike = %v, want 17500", call.Strike)
	}
	if call.InstrumentType != "CE" {
		t.Errorf("InstrumentType = %q, want CE", call.InstrumentType)
	}
	if call.Expiry.Format("2006-01-02") != "2026-01-29" {
		t.Errorf("Expiry = %v, want 2026-01-29", call.Expiry)
	}
}

func TestClient_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(sampleDump))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithRetries(3, time.Millisecond))

	instruments, err := c.Instruments(context.Background())
	if err != nil {
		t.Fatalf("Instruments failed after retries: %v", err)
	}
	if len(instruments) != 3 {
		t.Errorf("len(instruments) = %d, want 3", len(instruments))
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestClient_MissingColumnFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("instrument_token,tradingsymbol\n1,NIFTY 50\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithRetries(0, time.Millisecond))

	if _, err := c.Instruments(context.Background()); err == nil {
		t.Fatal("Instruments succeeded despite missing columns")
	}
}
