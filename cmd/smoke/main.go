// Package main is a smoke-test utility that verifies a running server end to end:
// it logs in, lists collections, lists the first collection's files, runs a search,
// fetches one transcript, and reads the first bytes of one audio file through the
// session cookie. It is meant for quick post-deployment checks without curl
// scripts or a full integration suite.
//
//	SMOKE_PASSWORD=... go run ./cmd/smoke -base http://localhost:8000 -user alice -query week
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"
)

type client struct {
	base  string
	http  *http.Client
	token string
}

func (c *client) getJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, body)
	}
	return json.Unmarshal(body, out)
}

func (c *client) login(user, password string) error {
	resp, err := c.http.PostForm(c.base+"/api/token", url.Values{"username": {user}, "password": {password}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login: status %d: %s", resp.StatusCode, body)
	}
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.token = tok.AccessToken
	return nil
}

// peekAudio reads up to 1 KiB of a media URL using the session cookie in the jar.
func (c *client) peekAudio(path string) (int, string, error) {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	if err != nil {
		return 0, "", err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return int(n), resp.Header.Get("Content-Type"), nil
}

func main() {
	base := flag.String("base", "http://localhost:8000", "server base URL")
	user := flag.String("user", "admin", "username")
	query := flag.String("query", "a", "search query")
	flag.Parse()

	jar, err := cookiejar.New(nil)
	if err != nil {
		log.Fatal(err)
	}
	c := &client{
		base: strings.TrimRight(*base, "/"),
		http: &http.Client{Jar: jar, Timeout: 60 * time.Second},
	}

	if err := c.login(*user, os.Getenv("SMOKE_PASSWORD")); err != nil {
		log.Fatalf("FAIL %v", err)
	}
	fmt.Println("OK   login")

	var collections []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.getJSON("/api/collections", &collections); err != nil {
		log.Fatalf("FAIL %v", err)
	}
	fmt.Printf("OK   collections: %d\n", len(collections))
	if len(collections) == 0 {
		return
	}

	var audios []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := c.getJSON("/api/audios/"+url.PathEscape(collections[0].ID), &audios); err != nil {
		log.Fatalf("FAIL %v", err)
	}
	fmt.Printf("OK   audios in %q: %d\n", collections[0].Name, len(audios))

	var titles []string
	if err := c.getJSON("/api/search?query="+url.QueryEscape(*query), &titles); err != nil {
		log.Fatalf("FAIL %v", err)
	}
	fmt.Printf("OK   search %q: %d\n", *query, len(titles))

	if len(titles) > 0 {
		var transcript struct {
			Text string `json:"text"`
		}
		if err := c.getJSON("/api/transcripts/"+url.PathEscape(titles[0]), &transcript); err != nil {
			log.Fatalf("FAIL %v", err)
		}
		fmt.Printf("OK   transcript %q: %d chars\n", titles[0], len(transcript.Text))
	}

	for _, a := range audios {
		if strings.HasSuffix(a.Title, ".json") {
			continue
		}
		n, ct, err := c.peekAudio(a.URL)
		if err != nil {
			log.Fatalf("FAIL %v", err)
		}
		fmt.Printf("OK   audio %q: %d bytes read, %s\n", a.Title, n, ct)
		break
	}
}
