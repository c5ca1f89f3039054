// h323call демонстрационный терминал H.323: принимает и совершает вызовы
// с быстрым стартом, туннелированием H.245 и RTP медиа.
package main

func main() {
	Execute()
}
