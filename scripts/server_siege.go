//go:build ignore

// server_siege requests every version of a list of images from a running
// adaptimg server, usually right after a cache wipe.
//
//	go run scripts/server_siege.go -s http://localhost:4446 -class content -f urls.txt
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	concurrency = flag.Int("c", 10, "Concurrency")
	file        = flag.String("f", "", "File with one image url per line")
	base        = flag.String("s", "http://localhost:4446", "Server")
	class       = flag.String("class", "content", "Image class")
)

type srcset struct {
	Versions []struct {
		URL string `json:"url"`
	} `json:"versions"`
}

func fetch(ctx context.Context, u string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s %s", u, resp.Status, resp.Header.Get("X-Err"))
	}
	return nil
}

func versions(ctx context.Context, image string) ([]string, error) {
	q := url.Values{"url": {image}, "class": {*class}}
	req, err := http.NewRequestWithContext(ctx, "GET", *base+"/srcset?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("srcset %s: %s", image, resp.Status)
	}

	var s srcset
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, err
	}
	urls := make([]string, len(s.Versions))
	for i, v := range s.Versions {
		urls[i] = *base + v.URL
	}
	return urls, nil
}

func readFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var result []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			result = append(result, line)
		}
	}
	return result, sc.Err()
}

func main() {
	flag.Parse()

	images, err := readFile(*file)
	if err != nil {
		logrus.Fatal(err)
	}
	logrus.Infof("%d concurrent fetchers for %d images...", *concurrency, len(images))

	ctx := context.Background()
	start := time.Now()

	var success, fail atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)

	for _, image := range images {
		urls, err := versions(ctx, image)
		if err != nil {
			logrus.WithError(err).Warn("skipping image")
			fail.Add(1)
			continue
		}
		for _, u := range urls {
			g.Go(func() error {
				if err := fetch(ctx, u); err != nil {
					logrus.Warn(err)
					fail.Add(1)
					return nil
				}
				success.Add(1)
				return nil
			})
		}
	}
	g.Wait()

	total := success.Load() + fail.Load()
	elapsed := time.Since(start)
	logrus.Infof("%d requests, %d ok, %d failed in %v (%.1f req/s)",
		total, success.Load(), fail.Load(), elapsed, float64(total)/elapsed.Seconds())
}
