package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/hyperifyio/gocollect/internal/search"
)

func main() {
	key := os.Getenv("SERPER_API_KEY")
	q := "golang worker pool"
	if len(os.Args) > 1 {
		q = os.Args[1]
	}
	client := &http.Client{Timeout: 20 * time.Second}
	prov := &search.Serper{APIKey: key, HTTPClient: client}
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()
	res, err := prov.Search(ctx, q, 5)
	fmt.Println("err:", err)
	for i, r := range res {
		fmt.Printf("%d. %s — %s\n", i+1, r.Title, r.Link)
	}
}
