// import-schedules loads country immunization calendars from a CSV and pushes
// them to the upstream immunization API.
//
// CSV columns: country,vaccine,ageMonths,ageWeeks,notes - exactly one of
// ageMonths/ageWeeks per row. Rows are grouped per country and each country
// calendar is uploaded as one document.
//
// Dry-run by default; pass -enable-write to actually upload.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var httpClient = &http.Client{Timeout: 20 * time.Second}

var (
	enableWrite bool
	workers     int
)

type templateRow struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	AgeMonths *float64 `json:"targetAgeMonths,omitempty"`
	AgeWeeks  *int     `json:"targetAgeWeeks,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

type calendar struct {
	Country string        `json:"country"`
	Items   []templateRow `json:"items"`
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}

	return def
}

func setLogLevel() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	switch strings.ToLower(getenv("LOG_LEVEL", "info")) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}

func main() {
	godotenv.Load()

	inPath := flag.String("in", "", "input CSV path (country,vaccine,ageMonths,ageWeeks,notes)")
	flag.BoolVar(&enableWrite, "enable-write", false, "enable uploading to the immunization API (default: dry-run mode)")
	flag.IntVar(&workers, "workers", 1, "number of concurrent uploads (default: 1)")
	flag.Parse()

	if *inPath == "" {
		log.Fatal("missing -in flag")
	}

	setLogLevel()

	apiURL := getenv("SPROUT_API_IMMUNIZE_API_URL", "http://localhost:9090")
	apiToken := os.Getenv("SPROUT_API_IMMUNIZE_API_TOKEN")

	if !enableWrite {
		logrus.Info("DRY RUN MODE - no uploads will occur")
	}

	logrus.Infof("Calendar import start (file=%s, api=%s, enable-write=%v, workers=%d)",
		*inPath, apiURL, enableWrite, workers)

	f, err := os.Open(*inPath)
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer f.Close()

	calendars, skipped, err := readCalendars(f)
	if err != nil {
		log.Fatalf("read: %v", err)
	}

	logrus.Infof("Parsed %d calendar(s); skipped %d bad row(s)", len(calendars), skipped)

	if workers < 1 {
		workers = 1
	}

	work := make(chan *calendar, workers*2)

	var wg sync.WaitGroup
	var okCount, errCount int64

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for cal := range work {
				if err := upload(apiURL, apiToken, cal); err != nil {
					logrus.Errorf("country '%s': %v", cal.Country, err)
					atomic.AddInt64(&errCount, 1)
					continue
				}

				logrus.Infof("country '%s': %d template(s) uploaded", cal.Country, len(cal.Items))
				atomic.AddInt64(&okCount, 1)
			}
		}()
	}

	for _, cal := range calendars {
		work <- cal
	}

	close(work)
	wg.Wait()

	logrus.Infof("Done (ok=%d, errors=%d)", okCount, errCount)

	if errCount > 0 {
		os.Exit(1)
	}
}

func readCalendars(r io.Reader) ([]*calendar, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 5
	cr.TrimLeadingSpace = true

	byCountry := map[string]*calendar{}
	skipped := 0
	rowNum := 0

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("row %d: %w", rowNum+1, err)
		}

		rowNum++

		// Header row
		if rowNum == 1 && strings.EqualFold(rec[0], "country") {
			continue
		}

		country := strings.ToLower(strings.TrimSpace(rec[0]))
		name := strings.TrimSpace(rec[1])

		if country == "" || name == "" {
			logrus.Warnf("row %d: missing country or vaccine name - skipping", rowNum)
			skipped++
			continue
		}

		row := templateRow{
			ID:    uuid.New().String(),
			Name:  name,
			Notes: strings.TrimSpace(rec[4]),
		}

		monthsStr := strings.TrimSpace(rec[2])
		weeksStr := strings.TrimSpace(rec[3])

		switch {
		case monthsStr != "" && weeksStr != "":
			logrus.Warnf("row %d: both ageMonths and ageWeeks set - skipping", rowNum)
			skipped++
			continue
		case monthsStr != "":
			months, err := strconv.ParseFloat(monthsStr, 64)
			if err != nil || months < 0 {
				logrus.Warnf("row %d: bad ageMonths '%s' - skipping", rowNum, monthsStr)
				skipped++
				continue
			}
			row.AgeMonths = &months
		case weeksStr != "":
			weeks, err := strconv.Atoi(weeksStr)
			if err != nil || weeks < 0 {
				logrus.Warnf("row %d: bad ageWeeks '%s' - skipping", rowNum, weeksStr)
				skipped++
				continue
			}
			row.AgeWeeks = &weeks
		default:
			// Neither set: a birth dose
			zero := float64(0)
			row.AgeMonths = &zero
		}

		cal, ok := byCountry[country]
		if !ok {
			cal = &calendar{Country: country}
			byCountry[country] = cal
		}

		cal.Items = append(cal.Items, row)
	}

	calendars := make([]*calendar, 0, len(byCountry))
	for _, cal := range byCountry {
		calendars = append(calendars, cal)
	}

	sort.Slice(calendars, func(i, j int) bool {
		return calendars[i].Country < calendars[j].Country
	})

	return calendars, skipped, nil
}

func upload(apiURL, token string, cal *calendar) error {
	if !enableWrite {
		logrus.Infof("[dry-run] would upload '%s' (%d templates)", cal.Country, len(cal.Items))
		return nil
	}

	body, err := json.Marshal(cal)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/schedules/%s", apiURL, url.PathEscape(cal.Country))

	req, err := http.NewRequest(http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(data))
	}

	return nil
}
