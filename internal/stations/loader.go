package stations

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/jlaffaye/ftp"

	"github.com/lox/fogwatch/internal/models"
)

const (
	DefaultSource = "station_coords.csv"
	ftpTimeout    = 30 * time.Second
)

// ErrNoStations means the station source does not exist. Callers treat it
// as "nothing to do", not as a failure.
var ErrNoStations = errors.New("station list not found")

// ErrMissingColumn means the station table header lacks a required column.
var ErrMissingColumn = errors.New("station list missing column")

// Loader reads the station table from a local path or an ftp:// URL.
type Loader struct {
	source string
}

func NewLoader(source string) *Loader {
	if source == "" {
		source = DefaultSource
	}
	return &Loader{source: source}
}

func (l *Loader) Source() string {
	return l.source
}

// Load returns stations in file order. Coordinates are not range-checked.
func (l *Loader) Load(ctx context.Context) ([]models.Station, error) {
	if strings.HasPrefix(l.source, "ftp://") {
		u, err := url.Parse(l.source)
		if err != nil {
			return nil, fmt.Errorf("parse station source: %w", err)
		}
		body, err := retrieveFTP(ctx, u)
		if err != nil {
			return nil, err
		}
		return Parse(bytes.NewReader(body))
	}

	f, err := os.Open(l.source)
	if os.IsNotExist(err) {
		return nil, ErrNoStations
	}
	if err != nil {
		return nil, fmt.Errorf("open station list: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes a station_name,latitude,longitude table with a header row.
// Every column must be present; extra columns are ignored.
func Parse(r io.Reader) ([]models.Station, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read station list: %w", err)
	}
	if err := checkHeader(data); err != nil {
		return nil, fmt.Errorf("parse station list: %w", err)
	}

	var list []models.Station
	if err := gocsv.UnmarshalBytes(data, &list); err != nil {
		return nil, fmt.Errorf("parse station list: %w", err)
	}
	return list, nil
}

// checkHeader rejects tables lacking a column that models.Station maps;
// gocsv would otherwise leave those fields zero.
func checkHeader(data []byte) error {
	dec := gocsv.NewSimpleDecoderFromCSVReader(gocsv.DefaultCSVReader(bytes.NewReader(data)))
	header, err := dec.GetCSVRow()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}

	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	for _, col := range stationColumns() {
		if !have[col] {
			return fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}
	return nil
}

func stationColumns() []string {
	t := reflect.TypeOf(models.Station{})
	cols := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("csv"), ",")[0]
		if tag != "" && tag != "-" {
			cols = append(cols, tag)
		}
	}
	return cols
}

func retrieveFTP(ctx context.Context, u *url.URL) ([]byte, error) {
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "21")
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(ftpTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	user, pass := ftpCredentials(u)
	if err := conn.Login(user, pass); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		var te *textproto.Error
		if errors.As(err, &te) && te.Code == ftp.StatusFileUnavailable {
			return nil, ErrNoStations
		}
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()

	body, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read station list: %w", err)
	}
	return body, nil
}

// ftpCredentials falls back to anonymous login.
func ftpCredentials(u *url.URL) (string, string) {
	if u.User == nil || u.User.Username() == "" {
		return "anonymous", "anonymous"
	}
	pass, _ := u.User.Password()
	return u.User.Username(), pass
}
