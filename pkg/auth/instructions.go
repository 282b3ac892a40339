package auth

import (
	"fmt"
	"strings"
)

// ShowLoginGuide displays what the operator has to do in an interactive refresh
func ShowLoginGuide(baseURL string, timeoutSeconds int) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("🔐 SESSION REFRESH")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()
	fmt.Printf("A browser window has opened on %s\n", baseURL)
	fmt.Println()
	fmt.Println("   1. Log in if you are not logged in already")
	fmt.Println("   2. Solve any captcha the site shows")
	fmt.Println("   3. Wait until your feed is visible")
	fmt.Println()
	fmt.Printf("The session is captured automatically once login is detected (timeout %ds).\n", timeoutSeconds)
	fmt.Println()
	fmt.Println("⚠️  The captured cookies give full access to the account. Keep the cookies")
	fmt.Println("   directory private and prefer a secondary account.")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()
}

// ShowQuickLoginGuide shows a condensed version for experienced users
func ShowQuickLoginGuide() {
	fmt.Println("\n🍪 Log in in the opened browser window; cookies are saved once sessionid appears")
}
