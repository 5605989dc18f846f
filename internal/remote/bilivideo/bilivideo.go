// Package bilivideo is the one concrete remote.Service adapter needed
// to run the module end-to-end. Its wire shapes are grounded on the
// JSON fields observed in
// original_source/bilibili_sensitive_crawler/utils/{search,downloader,login}.py
// (bvid, stat.view/like/coin/favorite, owner.mid/name, pages[].cid/
// duration, SESSDATA/bili_jct cookies). The exact wire format is
// adapter-level per spec.md §6; nothing outside this package parses
// these shapes.
package bilivideo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/vidcrawl/vidcrawl/internal/domain/crawl"
	"github.com/vidcrawl/vidcrawl/internal/remote"
	"github.com/vidcrawl/vidcrawl/internal/session"
	"github.com/vidcrawl/vidcrawl/internal/transport"
)

const (
	searchURL     = "https://api.bilibili.com/x/web-interface/wbi/search/type"
	videoDetailURL = "https://api.bilibili.com/x/web-interface/view"
	playURLURL     = "https://api.bilibili.com/x/player/wbi/playurl"
	navURL         = "https://api.bilibili.com/x/web-interface/nav"
	loginQRURL     = "https://passport.bilibili.com/x/passport-login/web/qrcode/generate"
	loginPollURL   = "https://passport.bilibili.com/x/passport-login/web/qrcode/poll"
)

// qualityNames maps the service's numeric quality codes to display
// names, per the original's quality table.
var qualityNames = map[int]string{
	120: "4K",
	116: "1080P60",
	112: "1080P+",
	80:  "1080P",
	74:  "720P60",
	64:  "720P",
	32:  "480P",
	16:  "360P",
}

// Adapter implements remote.Service against the live HTTP API via the
// shared rate-limited transport.
type Adapter struct {
	tr *transport.Transport
}

// New builds an Adapter over tr. All calls funnel through tr so they
// share the process-wide rate limiter and UA rotation.
func New(tr *transport.Transport) *Adapter {
	return &Adapter{tr: tr}
}

// qrLoginResp mirrors login.py's QR-login flow response shape.
type qrLoginResp struct {
	Code int `json:"code"`
	Data struct {
		URL       string `json:"url"`
		QrcodeKey string `json:"qrcode_key"`
	} `json:"data"`
}

// qrPollResp mirrors login.py's poll response; code 0 with a url means
// the user finished scanning and the cookies are now set on the
// client jar — bilibili's actual flow relies on cookie-jar capture,
// which this adapter surfaces as the Set-Cookie headers of the poll
// response mapped into a Credential.
type qrPollResp struct {
	Code int `json:"code"`
	Data struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		URL     string `json:"url"`
	} `json:"data"`
}

// Authenticate implements the interactive QR-login capability. In
// this adapter it degrades to "delegated capability" per spec.md §1:
// it issues the QR generation call and polls until the caller's
// context is cancelled or the poll reports success, returning the
// session cookies set by the successful poll response. A real terminal
// UI for displaying the QR code is out of scope (§1).
func (a *Adapter) Authenticate(ctx context.Context) (session.Credential, error) {
	res, err := a.tr.Request(ctx, "GET", loginQRURL, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("generate login qrcode: %w", err)
	}
	var qr qrLoginResp
	if err := json.Unmarshal(res.Body, &qr); err != nil {
		return nil, fmt.Errorf("decode qrcode response: %w", err)
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			params := url.Values{"qrcode_key": {qr.Data.QrcodeKey}}
			res, err := a.tr.Request(ctx, "GET", loginPollURL, params, nil)
			if err != nil {
				return nil, fmt.Errorf("poll login status: %w", err)
			}
			var poll qrPollResp
			if err := json.Unmarshal(res.Body, &poll); err != nil {
				return nil, fmt.Errorf("decode poll response: %w", err)
			}
			if poll.Data.Code == 0 {
				return cookiesFromHeader(res.Header), nil
			}
		}
	}
}

func cookiesFromHeader(h map[string][]string) session.Credential {
	cred := session.Credential{}
	for _, v := range h["Set-Cookie"] {
		name, value := parseSetCookie(v)
		if name != "" {
			cred[name] = value
		}
	}
	return cred
}

func parseSetCookie(raw string) (string, string) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '=' {
			end := i
			for j := i; j < len(raw); j++ {
				if raw[j] == ';' {
					end = j
					break
				}
				end = j + 1
			}
			return raw[:i], raw[i+1 : end]
		}
		if raw[i] == ';' {
			break
		}
	}
	return "", ""
}

// navResp mirrors the nav endpoint used to verify a session's
// identity (§6 "Verify session").
type navResp struct {
	Code int `json:"code"`
	Data struct {
		IsLogin bool `json:"isLogin"`
		Mid     int64 `json:"mid"`
	} `json:"data"`
}

// VerifySession implements §6's "Verify session" capability.
func (a *Adapter) VerifySession(ctx context.Context, cred session.Credential) (bool, error) {
	a.tr.SetSessionHeaders(cred.Headers())
	res, err := a.tr.Request(ctx, "GET", navURL, nil, nil)
	if err != nil {
		return false, err
	}
	var nav navResp
	if err := json.Unmarshal(res.Body, &nav); err != nil {
		return false, fmt.Errorf("decode nav response: %w", err)
	}
	return nav.Code == 0 && nav.Data.IsLogin, nil
}

// searchResp mirrors search.py's page response shape.
type searchResp struct {
	Code int `json:"code"`
	Data struct {
		Result []struct {
			BVID     string `json:"bvid"`
			Title    string `json:"title"`
			Author   string `json:"author"`
			Mid      int64  `json:"mid"`
			Play     int64  `json:"play"`
			Like     int64  `json:"like"`
			Duration string `json:"duration"` // "mm:ss"
			Pubdate  int64  `json:"pubdate"`
		} `json:"result"`
		NumPages int `json:"numPages"`
	} `json:"data"`
}

// SearchVideos implements §6's "Search videos".
func (a *Adapter) SearchVideos(ctx context.Context, keyword string, page, pageSize int) (remote.SearchPage, error) {
	params := url.Values{
		"keyword":  {keyword},
		"page":     {strconv.Itoa(page)},
		"page_size": {strconv.Itoa(pageSize)},
		"search_type": {"video"},
		"order":    {"totalrank"},
	}
	res, err := a.tr.Request(ctx, "GET", searchURL, params, nil)
	if err != nil {
		return remote.SearchPage{}, err
	}

	var sr searchResp
	if err := json.Unmarshal(res.Body, &sr); err != nil {
		return remote.SearchPage{}, fmt.Errorf("decode search response: %w", err)
	}

	out := remote.SearchPage{HasMore: page < sr.Data.NumPages}
	for _, r := range sr.Data.Result {
		out.Candidates = append(out.Candidates, crawl.Candidate{
			ItemID:       r.BVID,
			Title:        stripHighlightTags(r.Title),
			Duration:     parseMMSS(r.Duration),
			PublishTime:  time.Unix(r.Pubdate, 0).UTC(),
			UploaderID:   strconv.FormatInt(r.Mid, 10),
			UploaderName: r.Author,
			PlayCount:    r.Play,
			LikeCount:    r.Like,
			Keyword:      keyword,
		})
	}
	return out, nil
}

// stripHighlightTags removes the <em class="keyword">..</em> wrapper
// the search endpoint puts around matched substrings.
func stripHighlightTags(s string) string {
	out := make([]byte, 0, len(s))
	skip := false
	for i := 0; i < len(s); i++ {
		if s[i] == '<' {
			skip = true
			continue
		}
		if s[i] == '>' {
			skip = false
			continue
		}
		if !skip {
			out = append(out, s[i])
		}
	}
	return string(out)
}

func parseMMSS(s string) int64 {
	var mm, ss int64
	n, err := fmt.Sscanf(s, "%d:%d", &mm, &ss)
	if err != nil || n != 2 {
		return 0
	}
	return mm*60 + ss
}

// detailResp mirrors dataset.py's expected "basic_info"-shaped detail
// response, sourced from the view endpoint.
type detailResp struct {
	Code int `json:"code"`
	Data struct {
		BVID    string `json:"bvid"`
		Title   string `json:"title"`
		Desc    string `json:"desc"`
		Pic     string `json:"pic"`
		Pubdate int64  `json:"pubdate"`
		Duration int64 `json:"duration"`
		Owner   struct {
			Mid  int64  `json:"mid"`
			Name string `json:"name"`
		} `json:"owner"`
		Stat struct {
			View     int64 `json:"view"`
			Like     int64 `json:"like"`
			Coin     int64 `json:"coin"`
			Favorite int64 `json:"favorite"`
			Reply    int64 `json:"reply"`
			Share    int64 `json:"share"`
		} `json:"stat"`
		Pages []struct {
			CID      int64  `json:"cid"`
			Part     string `json:"part"`
			Duration int64  `json:"duration"`
		} `json:"pages"`
		TagsText string `json:"-"`
	} `json:"data"`
}

// GetVideoDetail implements §6's "Get video detail".
func (a *Adapter) GetVideoDetail(ctx context.Context, itemID string) (crawl.MetadataRecord, error) {
	params := url.Values{"bvid": {itemID}}
	res, err := a.tr.Request(ctx, "GET", videoDetailURL, params, nil)
	if err != nil {
		return crawl.MetadataRecord{}, err
	}

	var dr detailResp
	if err := json.Unmarshal(res.Body, &dr); err != nil {
		return crawl.MetadataRecord{}, fmt.Errorf("decode detail response: %w", err)
	}

	rec := crawl.MetadataRecord{
		BasicInfo: crawl.BasicInfo{
			ItemID:      dr.Data.BVID,
			Title:       dr.Data.Title,
			Description: dr.Data.Desc,
			Duration:    dr.Data.Duration,
			PublishTime: time.Unix(dr.Data.Pubdate, 0).UTC(),
			CoverURL:    dr.Data.Pic,
		},
		Owner: crawl.Owner{
			UploaderID:   strconv.FormatInt(dr.Data.Owner.Mid, 10),
			UploaderName: dr.Data.Owner.Name,
		},
		Stats: crawl.Stats{
			PlayCount:     dr.Data.Stat.View,
			LikeCount:     dr.Data.Stat.Like,
			CoinCount:     dr.Data.Stat.Coin,
			FavoriteCount: dr.Data.Stat.Favorite,
			CommentCount:  dr.Data.Stat.Reply,
			ShareCount:    dr.Data.Stat.Share,
		},
		CrawlInfo: crawl.CrawlInfo{
			CrawledAt:     time.Now().UTC(),
			SchemaVersion: crawl.SchemaVersion,
		},
	}
	for _, p := range dr.Data.Pages {
		rec.Pages = append(rec.Pages, crawl.Page{PageID: p.CID, Title: p.Part, Duration: p.Duration})
	}
	return rec, nil
}

// playURLResp mirrors downloader.py's DASH playurl response shape.
type playURLResp struct {
	Code int `json:"code"`
	Data struct {
		Dash struct {
			Video []struct {
				ID      int    `json:"id"`
				BaseURL string `json:"baseUrl"`
			} `json:"video"`
			Audio []struct {
				ID      int    `json:"id"`
				BaseURL string `json:"baseUrl"`
			} `json:"audio"`
		} `json:"dash"`
		AcceptQuality []int    `json:"accept_quality"`
		AcceptDesc    []string `json:"accept_description"`
	} `json:"data"`
}

// AvailableQualities implements the pre-step of §4.5's quality
// selection: listing what's on offer before resolving URLs.
func (a *Adapter) AvailableQualities(ctx context.Context, itemID string) ([]remote.Quality, error) {
	pr, err := a.fetchPlayURL(ctx, itemID, 127) // request max, server reports what's actually available
	if err != nil {
		return nil, err
	}
	qualities := make([]remote.Quality, 0, len(pr.Data.AcceptQuality))
	for _, code := range pr.Data.AcceptQuality {
		name := qualityNames[code]
		if name == "" {
			name = strconv.Itoa(code)
		}
		qualities = append(qualities, remote.Quality{Code: code, Name: name})
	}
	return qualities, nil
}

// GetStreamURLs implements §6's "Get stream URLs".
func (a *Adapter) GetStreamURLs(ctx context.Context, itemID string, quality int) (remote.StreamURLs, error) {
	pr, err := a.fetchPlayURL(ctx, itemID, quality)
	if err != nil {
		return remote.StreamURLs{}, err
	}
	if len(pr.Data.Dash.Video) == 0 || len(pr.Data.Dash.Audio) == 0 {
		return remote.StreamURLs{}, fmt.Errorf("no dash streams for item %s at quality %d", itemID, quality)
	}
	return remote.StreamURLs{
		VideoURL: pr.Data.Dash.Video[0].BaseURL,
		AudioURL: pr.Data.Dash.Audio[0].BaseURL,
		Quality:  pr.Data.Dash.Video[0].ID,
	}, nil
}

func (a *Adapter) fetchPlayURL(ctx context.Context, itemID string, quality int) (*playURLResp, error) {
	params := url.Values{
		"bvid":  {itemID},
		"qn":    {strconv.Itoa(quality)},
		"fnval": {"16"}, // DASH format, per downloader.py
	}
	res, err := a.tr.Request(ctx, "GET", playURLURL, params, nil)
	if err != nil {
		return nil, err
	}
	var pr playURLResp
	if err := json.Unmarshal(res.Body, &pr); err != nil {
		return nil, fmt.Errorf("decode playurl response: %w", err)
	}
	return &pr, nil
}
