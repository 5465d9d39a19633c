package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	rd "github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status   int
	Ok       bool
	ErrorMsg string
	Err      error
}

type apiResult struct {
	Ok       bool            `json:"ok"`
	Data     json.RawMessage `json:"data"`
	ErrorMsg string          `json:"errorMsg"`
}

func main() {
	baseURL := pflag.String("base", "http://localhost:8080", "server base url")
	redisAddr := pflag.String("redis", "localhost:6379", "redis address (login codes are read from it)")
	voucherID := pflag.Int64("voucher", 1, "seckill voucher id")
	create := pflag.Bool("create", true, "create the voucher before test")
	stock := pflag.Int32("stock", 100, "voucher stock when creating")
	adminToken := pflag.String("admin-token", "dev-admin-token", "admin token")

	// 超卖测试参数：1000 个用户并发抢 100 张
	nUsers := pflag.Int("users", 1000, "distinct users")
	concurrency := pflag.Int("c", 100, "max concurrency")
	pflag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}
	rdb := rd.NewClient(&rd.Options{Addr: *redisAddr})
	defer rdb.Close()
	ctx := context.Background()

	if *create {
		now := time.Now()
		body := map[string]any{
			"voucherId": *voucherID,
			"stock":     *stock,
			"beginTime": now.Add(-time.Minute).Format(time.RFC3339),
			"endTime":   now.Add(time.Hour).Format(time.RFC3339),
		}
		if _, err := call(client, http.MethodPost, *baseURL+"/voucher/seckill", body, map[string]string{
			"X-Admin-Token": *adminToken,
		}); err != nil {
			fail("create voucher: %v", err)
		}
		fmt.Println("voucher created")
	}

	fmt.Printf("logging in %d users...\n", *nUsers)
	tokens, err := loginUsers(ctx, client, rdb, *baseURL, *nUsers, *concurrency)
	if err != nil {
		fail("login: %v", err)
	}

	// 1) 不超卖测试：不同用户并发
	fmt.Printf("start oversell test: voucher=%d users=%d concurrency=%d\n", *voucherID, len(tokens), *concurrency)
	start := time.Now()
	results := runSeckill(client, *baseURL, *voucherID, tokens, *concurrency)
	fmt.Printf("done in %s\n", time.Since(start))
	printSummary("oversell", results)

	if s, err := getStock(client, *baseURL, *voucherID); err != nil {
		fmt.Println("stock check err:", err)
	} else {
		fmt.Println("final redis stock:", s)
	}

	// 2) 一人一单：同一个用户并发抢 50 次，最多一次成功
	same := make([]string, 50)
	for i := range same {
		same[i] = tokens[0]
	}
	printSummary("one_per_user", runSeckill(client, *baseURL, *voucherID, same, 50))
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// loginUsers 为每个用户发送验证码，直接从 Redis 读出验证码后登录。
func loginUsers(ctx context.Context, client *http.Client, rdb *rd.Client, baseURL string, n, concurrency int) ([]string, error) {
	tokens := make([]string, n)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			phone := fmt.Sprintf("138%08d", i)
			if _, err := call(client, http.MethodPost, baseURL+"/user/code?phone="+phone, nil, nil); err != nil {
				return fmt.Errorf("send code %s: %w", phone, err)
			}
			code, err := rdb.Get(ctx, "login:code:"+phone).Result()
			if err != nil {
				return fmt.Errorf("read code %s: %w", phone, err)
			}
			res, err := call(client, http.MethodPost, baseURL+"/user/login", map[string]string{"phone": phone, "code": code}, nil)
			if err != nil {
				return fmt.Errorf("login %s: %w", phone, err)
			}
			return json.Unmarshal(res.Data, &tokens[i])
		})
	}
	return tokens, g.Wait()
}

func runSeckill(client *http.Client, baseURL string, voucherID int64, tokens []string, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, len(tokens))

	for i, token := range tokens {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, token string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = seckillOnce(client, baseURL, voucherID, token)
		}(i, token)
	}

	wg.Wait()
	return results
}

func seckillOnce(client *http.Client, baseURL string, voucherID int64, token string) Result {
	url := fmt.Sprintf("%s/voucher-order/seckill/%d", baseURL, voucherID)
	req, _ := http.NewRequest(http.MethodPost, url, nil)
	req.Header.Set("authorization", token)

	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	var out apiResult
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return Result{Status: resp.StatusCode, Ok: out.Ok, ErrorMsg: out.ErrorMsg}
}

// printSummary 聚合输出成功数与失败原因分布。
func printSummary(name string, results []Result) {
	count := map[string]int{}
	for _, r := range results {
		switch {
		case r.Err != nil:
			count["transport error"]++
		case r.Ok:
			count["ok"]++
		case r.ErrorMsg != "":
			count[r.ErrorMsg]++
		default:
			count[fmt.Sprintf("http %d", r.Status)]++
		}
	}
	keys := make([]string, 0, len(count))
	for k := range count {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("[%s] summary:\n", name)
	for _, k := range keys {
		fmt.Printf("  %s -> %d\n", k, count[k])
	}
}

// call 发送请求并要求 ok=true。
func call(client *http.Client, method, url string, body any, headers map[string]string) (apiResult, error) {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, url, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return apiResult{}, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	var out apiResult
	if err := json.Unmarshal(b, &out); err != nil {
		return apiResult{}, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}
	if !out.Ok {
		return out, fmt.Errorf("status=%d errorMsg=%s", resp.StatusCode, out.ErrorMsg)
	}
	return out, nil
}

// getStock 查询 Redis 中当前库存，用于压测后校验是否出现超卖。
func getStock(client *http.Client, baseURL string, voucherID int64) (int64, error) {
	res, err := call(client, http.MethodGet, fmt.Sprintf("%s/voucher/seckill/%d/stock", baseURL, voucherID), nil, nil)
	if err != nil {
		return 0, err
	}
	var out struct {
		Stock int64 `json:"stock"`
	}
	if err := json.Unmarshal(res.Data, &out); err != nil {
		return 0, err
	}
	return out.Stock, nil
}
