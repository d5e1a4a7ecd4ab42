package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

// 并发下单压测：n 个并发请求抢同一商品，结束后核对库存，验证不超卖。
func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	productID := flag.Uint("product", 1, "product id")
	quantity := flag.Int("qty", 1, "quantity per order")
	n := flag.Int("n", 200, "total requests")
	concurrency := flag.Int("c", 50, "max concurrency")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	before, err := getStock(client, *baseURL, *productID)
	if err != nil {
		panic(fmt.Sprintf("stock before: %v", err))
	}
	fmt.Printf("stock before: %d\n", before)

	fmt.Printf("start oversell test: product=%d n=%d qty=%d concurrency=%d\n",
		*productID, *n, *quantity, *concurrency)
	results := runCreate(client, *baseURL, *productID, *quantity, *n, *concurrency)
	printSummary("oversell", results)

	after, err := getStock(client, *baseURL, *productID)
	if err != nil {
		panic(fmt.Sprintf("stock after: %v", err))
	}

	created := 0
	for _, r := range results {
		if r.Status == http.StatusCreated {
			created++
		}
	}
	expected := before - int64(created*(*quantity))
	fmt.Printf("stock after: %d (expected %d, created %d)\n", after, expected, created)
	if after != expected || after < 0 {
		fmt.Println("FAIL: stock mismatch, possible oversell")
		return
	}
	fmt.Println("OK: no oversell")
}

func runCreate(client *http.Client, baseURL string, productID uint, qty, total, concurrency int) []Result {
	type item struct {
		ProductID uint `json:"product_id"`
		Quantity  int  `json:"quantity"`
	}
	type req struct {
		Items []item `json:"items"`
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = createOnce(client, baseURL, req{Items: []item{{ProductID: productID, Quantity: qty}}})
		}(i)
	}

	wg.Wait()
	return results
}

func createOnce(client *http.Client, baseURL string, body any) Result {
	b, _ := json.Marshal(body)
	url := fmt.Sprintf("%s/api/orders", baseURL)
	httpReq, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(respBody)}
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{201, 400, 404, 422, 429, 500} {
		if count[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, count[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

// getStock 查询商品当前库存，用于压测前后核对。
func getStock(client *http.Client, baseURL string, productID uint) (int64, error) {
	url := fmt.Sprintf("%s/api/products/%d", baseURL, productID)
	resp, err := client.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}

	var out struct {
		Code int `json:"code"`
		Data struct {
			Stock int64 `json:"stock"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return 0, err
	}
	return out.Data.Stock, nil
}
